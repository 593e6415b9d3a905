package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		email string
		valid bool
	}{
		{"owner@shop.example", true},
		{"first.last+tag@sub.domain.co", true},

		{"", false},
		{"no-at-sign", false},
		{"two@@signs.example", false},
		{"trailing@dot", false},
		{"spaces in@local.example", false},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.valid, IsValidEmail(tc.email), "IsValidEmail(%q)", tc.email)
	}
}

func TestIsValidSlug(t *testing.T) {
	tests := []struct {
		slug  string
		valid bool
	}{
		{"acme", true},
		{"acme-store", true},
		{"shop-24-7", true},

		{"", false},
		{"a", false},
		{"Uppercase", false},
		{"-leading", false},
		{"trailing-", false},
		{"under_score", false},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.valid, IsValidSlug(tc.slug), "IsValidSlug(%q)", tc.slug)
	}
}

func TestIsValidDomain(t *testing.T) {
	tests := []struct {
		domain string
		valid  bool
	}{
		{"example.com", true},
		{"shop.example.co.uk", true},
		{"*.example.com", true},
		{"EXAMPLE.COM", true},

		{"", false},
		{"localhost", false},
		{"-bad.example.com", false},
		{"http://example.com", false},
		{"example.com/path", false},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.valid, IsValidDomain(tc.domain), "IsValidDomain(%q)", tc.domain)
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"  hello  ", 10, "hello"},
		{"hello world", 5, "hello"},
		{"hello\x00world", 20, "helloworld"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, SanitizeString(tc.input, tc.maxLen))
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "owner@shop.example", NormalizeEmail("  Owner@Shop.Example "))
}

func TestValidate(t *testing.T) {
	errors := Validate(
		Required("email", "owner@shop.example"),
		ValidEmail("email", "owner@shop.example"),
	)
	assert.Len(t, errors, 0)

	errors = Validate(
		Required("email", ""),
		ValidDomain("domain", "not a domain"),
	)
	assert.Len(t, errors, 2)
	assert.Equal(t, "email", errors[0].Field)
	assert.Equal(t, "email: is required", errors.Error())
}

func TestMaxLength(t *testing.T) {
	errors := Validate(MaxLength("name", "abcdef", 5))
	assert.Len(t, errors, 1)

	errors = Validate(MaxLength("name", "abc", 5))
	assert.Len(t, errors, 0)
}
