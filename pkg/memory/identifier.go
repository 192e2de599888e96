package memory

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidIdentifier is returned when a namespace or key fails validation.
// Validation always runs before policy checks and backend calls, so malformed
// identifiers never reach backend-specific key encoding.
var ErrInvalidIdentifier = errors.New("invalid identifier")

var identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidIdentifier reports whether s is a well-formed namespace or key:
// non-empty, alphanumerics, hyphens, and underscores only.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// ValidateIdentifier checks value and names it kind ("namespace" or "key")
// in the failure message.
func ValidateIdentifier(kind, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrInvalidIdentifier, kind)
	}
	if !identifierPattern.MatchString(value) {
		return fmt.Errorf("%w: %s must contain only alphanumeric characters, hyphens, and underscores. Got: %s",
			ErrInvalidIdentifier, kind, value)
	}
	return nil
}
