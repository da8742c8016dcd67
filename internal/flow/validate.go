package flow

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	emailRe  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	amountRe = regexp.MustCompile(`^\d+(\.\d{1,6})?$`)
	otpRe    = regexp.MustCompile(`^\d{1,6}$`)
)

// minAddressLen is the shortest wallet address accepted by a withdrawal.
const minAddressLen = 32

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool {
	return emailRe.MatchString(strings.TrimSpace(s))
}

// NormalizeOTP strips all whitespace from a user-entered code ("12 34 56"
// becomes "123456") and validates the result as 1-6 digits.
func NormalizeOTP(s string) (string, bool) {
	stripped := strings.Join(strings.Fields(s), "")
	if !otpRe.MatchString(stripped) {
		return "", false
	}
	return stripped, true
}

// ValidAmount accepts a decimal string with at most 6 fractional digits and a
// value strictly greater than zero. The original string is what gets
// submitted; parsing is only for the positivity check.
func ValidAmount(s string) bool {
	s = strings.TrimSpace(s)
	if !amountRe.MatchString(s) {
		return false
	}
	v, err := strconv.ParseFloat(s, 64)
	return err == nil && v > 0
}

// ValidRecipient accepts any non-empty string containing "@".
func ValidRecipient(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && strings.Contains(s, "@")
}

// ValidAddress accepts wallet addresses of at least 32 characters.
func ValidAddress(s string) bool {
	return len(strings.TrimSpace(s)) >= minAddressLen
}

// NormalizeDescription maps the literal "skip" (any case) to empty.
func NormalizeDescription(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "skip") {
		return ""
	}
	return s
}
