package validation

import (
	"net/mail"
	"strings"
)

// IsValidEmail reports whether email is a usable address. Stricter than
// RFC 5322: the domain must have a TLD, since bare hostnames are never
// real recipient addresses in practice.
func IsValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" || len(email) > 254 {
		return false
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}

	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return false
	}
	if strings.Contains(local, "..") {
		return false
	}
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return false
	}

	return true
}
