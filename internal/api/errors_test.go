package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeErrorStringMessage(t *testing.T) {
	err := normalizeError(400, []byte(`{"message":"amount too low"}`))
	assert.Equal(t, "amount too low", err.Message)
	assert.Equal(t, KindValidation, err.Kind)
	assert.Equal(t, 400, err.Status)
}

func TestNormalizeErrorArrayOfStrings(t *testing.T) {
	err := normalizeError(400, []byte(`{"message":["email is invalid","amount is required"]}`))
	assert.Equal(t, "email is invalid; amount is required", err.Message)
}

func TestNormalizeErrorFieldViolations(t *testing.T) {
	body := `{"message":[
		{"property":"amount","constraints":{"isPositive":"amount must be positive"}},
		{"property":"email","constraints":{"isEmail":"email must be an email"}}
	]}`
	err := normalizeError(422, []byte(body))
	assert.Equal(t, "amount: amount must be positive; email: email must be an email", err.Message)
	assert.Equal(t, KindValidation, err.Kind)
}

func TestNormalizeErrorNestedViolations(t *testing.T) {
	body := `{"message":[
		{"property":"recipient","constraints":{},"children":[
			{"property":"email","constraints":{"isEmail":"must be an email"}}
		]}
	]}`
	err := normalizeError(422, []byte(body))
	assert.Equal(t, "recipient.email: must be an email", err.Message)
}

func TestNormalizeErrorStatusFallback(t *testing.T) {
	cases := map[int]string{
		400: "invalid request",
		401: "authentication required, please log in again",
		403: "you are not allowed to perform this action",
		404: "not found",
		500: "the payments service hit an internal error",
		502: "the payments service is unreachable",
		503: "the payments service is temporarily unavailable",
		504: "the payments service timed out",
	}
	for status, want := range cases {
		err := normalizeError(status, nil)
		assert.Equal(t, want, err.Message, "status %d", status)
	}
}

func TestNormalizeErrorNeverLeaksRawJSON(t *testing.T) {
	// unparseable bodies fall back to the status phrase, never raw bytes
	err := normalizeError(500, []byte(`{"weird":{"nested":true}}`))
	assert.Equal(t, "the payments service hit an internal error", err.Message)
	assert.NotContains(t, err.Message, "{")
}

func TestNormalizeErrorUnknownStatus(t *testing.T) {
	err := normalizeError(418, nil)
	assert.Equal(t, "request failed (status 418)", err.Message)
}

func TestNormalizeErrorKinds(t *testing.T) {
	assert.Equal(t, KindAuth, normalizeError(401, nil).Kind)
	assert.Equal(t, KindAuth, normalizeError(403, nil).Kind)
	assert.Equal(t, KindValidation, normalizeError(422, nil).Kind)
	assert.Equal(t, KindRemote, normalizeError(503, nil).Kind)
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, IsAuthError(normalizeError(401, nil)))
	assert.False(t, IsAuthError(normalizeError(500, nil)))
	assert.False(t, IsAuthError(assert.AnError))
}
