package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("a@b.com"))
	assert.True(t, ValidEmail("  user.name@sub.example.org "))
	assert.False(t, ValidEmail("a@b"))
	assert.False(t, ValidEmail("plainstring"))
	assert.False(t, ValidEmail("a b@c.com"))
	assert.False(t, ValidEmail(""))
}

func TestNormalizeOTP(t *testing.T) {
	got, ok := NormalizeOTP("12 34 56")
	assert.True(t, ok)
	assert.Equal(t, "123456", got)

	got, ok = NormalizeOTP("1")
	assert.True(t, ok)
	assert.Equal(t, "1", got)

	_, ok = NormalizeOTP("1234567")
	assert.False(t, ok)
	_, ok = NormalizeOTP("12a456")
	assert.False(t, ok)
	_, ok = NormalizeOTP("")
	assert.False(t, ok)
}

func TestValidAmount(t *testing.T) {
	for _, good := range []string{"1", "10.5", "0.000001", "123456.123456"} {
		assert.True(t, ValidAmount(good), good)
	}
	for _, bad := range []string{"0", "-1", "abc", "1.1234567", "1.", ".5", "1,5", ""} {
		assert.False(t, ValidAmount(bad), bad)
	}
}

func TestValidAddress(t *testing.T) {
	assert.True(t, ValidAddress("0x1234567890abcdef1234567890abcdef12345678"))
	assert.False(t, ValidAddress("0xshort"))
}

func TestNormalizeDescription(t *testing.T) {
	assert.Equal(t, "", NormalizeDescription("skip"))
	assert.Equal(t, "", NormalizeDescription("  SKIP "))
	assert.Equal(t, "lunch", NormalizeDescription(" lunch "))
}
