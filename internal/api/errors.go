package api

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies a gateway failure for handling policy: validation and auth
// errors prompt the user, remote errors surface the normalized message,
// transport errors surface a generic retry message.
type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindRemote     Kind = "remote"
	KindTransport  Kind = "transport"
)

// Error is the uniform failure value returned by every gateway call. Message
// is already user-presentable; raw response bodies never pass through.
type Error struct {
	Status  int
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Code feeds the router's error-code derivation.
func (e *Error) Code() string { return string(e.Kind) }

var statusFallbacks = map[int]string{
	400: "invalid request",
	401: "authentication required, please log in again",
	403: "you are not allowed to perform this action",
	404: "not found",
	500: "the payments service hit an internal error",
	502: "the payments service is unreachable",
	503: "the payments service is temporarily unavailable",
	504: "the payments service timed out",
}

func kindForStatus(status int) Kind {
	switch status {
	case 400, 404, 409, 422:
		return KindValidation
	case 401, 403:
		return KindAuth
	default:
		return KindRemote
	}
}

// errorBody is the superset of error payload shapes the gateway emits.
// message may be a plain string, an array of strings, or an array of
// per-field validation objects.
type errorBody struct {
	Message json.RawMessage `json:"message"`
	Error   string          `json:"error"`
}

type fieldViolation struct {
	Property    string            `json:"property"`
	Constraints map[string]string `json:"constraints"`
	Children    []fieldViolation  `json:"children"`
}

// normalizeError flattens whichever error shape the gateway returned into a
// single readable message, falling back to a status-keyed phrase.
func normalizeError(status int, body []byte) *Error {
	e := &Error{Status: status, Kind: kindForStatus(status)}
	if msg := extractMessage(body); msg != "" {
		e.Message = msg
		return e
	}
	if phrase, ok := statusFallbacks[status]; ok {
		e.Message = phrase
		return e
	}
	e.Message = fmt.Sprintf("request failed (status %d)", status)
	return e
}

func extractMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	if len(eb.Message) > 0 {
		if msg := flattenMessage(eb.Message); msg != "" {
			return msg
		}
	}
	return strings.TrimSpace(eb.Error)
}

func flattenMessage(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var strs []string
	if err := json.Unmarshal(raw, &strs); err == nil {
		parts := strs[:0]
		for _, entry := range strs {
			if entry = strings.TrimSpace(entry); entry != "" {
				parts = append(parts, entry)
			}
		}
		return strings.Join(parts, "; ")
	}

	var violations []fieldViolation
	if err := json.Unmarshal(raw, &violations); err == nil {
		var parts []string
		for _, v := range violations {
			parts = append(parts, flattenViolation(v, "")...)
		}
		return strings.Join(parts, "; ")
	}
	return ""
}

// flattenViolation renders one per-field object as "property: constraint"
// fragments, descending one level into child fields.
func flattenViolation(v fieldViolation, prefix string) []string {
	name := v.Property
	if prefix != "" {
		name = prefix + "." + name
	}
	var parts []string
	for _, key := range sortedKeys(v.Constraints) {
		parts = append(parts, fmt.Sprintf("%s: %s", name, v.Constraints[key]))
	}
	if prefix == "" {
		for _, child := range v.Children {
			parts = append(parts, flattenViolation(child, name)...)
		}
	}
	return parts
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// transportError is returned for network-level failures so dial errors and
// timeouts never leak host details to the chat. The cause is logged by the
// caller before substitution.
func transportError() *Error {
	return &Error{
		Kind:    KindTransport,
		Message: "could not reach the payments service, please try again",
	}
}

// IsAuthError reports whether err is a gateway auth failure, used by flows to
// prompt a re-login instead of surfacing the message as-is.
func IsAuthError(err error) bool {
	apiErr, ok := err.(*Error)
	return ok && apiErr.Kind == KindAuth
}
