// Package validation provides input validation for invitation requests.
package validation

import (
	"net/mail"
	"regexp"
	"strings"
)

// ValidationError describes why a field failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// domainLabelRegex validates one dot-separated label of an email domain:
// letters, digits and hyphens, not starting or ending with a hyphen.
var domainLabelRegex = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?$`)

const (
	maxEmailLength = 254
	maxLocalLength = 64
)

// ValidateEmail checks that email is a bare address (no display name) with a
// dotted domain, e.g. "someone@example.com".
func ValidateEmail(email string) error {
	if email == "" {
		return &ValidationError{Field: "email", Message: "email is required"}
	}
	if len(email) > maxEmailLength {
		return &ValidationError{Field: "email", Message: "email must be 254 characters or less"}
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return &ValidationError{Field: "email", Message: "email must be a valid address"}
	}

	at := strings.LastIndex(email, "@")
	local, domain := email[:at], email[at+1:]
	if local == "" || len(local) > maxLocalLength {
		return &ValidationError{Field: "email", Message: "email local part must be 1-64 characters"}
	}

	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return &ValidationError{Field: "email", Message: "email domain must contain a dot"}
	}
	for _, label := range labels {
		if len(label) > 63 || !domainLabelRegex.MatchString(label) {
			return &ValidationError{Field: "email", Message: "email domain is not valid"}
		}
	}

	return nil
}

// IsValidEmail is a boolean shorthand for ValidateEmail.
func IsValidEmail(email string) bool {
	return ValidateEmail(email) == nil
}
