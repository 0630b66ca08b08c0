package validation

import (
	"strings"
	"testing"
)

func TestIsValidEmail(t *testing.T) {
	valid := []string{
		"user@example.com",
		"user@mail.example.com",
		"user+tag@example.com",
		"first.last@example.com",
		"user123@example456.com",
		"  user@example.com  ", // trimmed
	}
	for _, email := range valid {
		if !IsValidEmail(email) {
			t.Errorf("IsValidEmail(%q) = false, want true", email)
		}
	}

	invalid := []string{
		"",
		"userexample.com",
		"@",
		"@@@",
		"@example.com",
		"user@",
		"user@localhost", // no TLD
		"user@.com",
		"user@example.com.",
		"user..name@example.com",
		"user name@example.com",
		"a@b.",
		strings.Repeat("a", 250) + "@example.com", // over 254
	}
	for _, email := range invalid {
		if IsValidEmail(email) {
			t.Errorf("IsValidEmail(%q) = true, want false", email)
		}
	}
}
