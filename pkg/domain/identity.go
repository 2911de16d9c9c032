package domain

import (
	"strings"

	dErrors "curio/pkg/domain-errors"
)

// Identity is an opaque principal token (an address-like value supplied by
// the identity provider). The registry never interprets its structure; it is
// only compared for equality and used as a map key.
//
// Usage: construct via ParseIdentity at trust boundaries; direct casting
// bypasses validation.
type Identity string

// ParseIdentity constructs an Identity from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or blank; no other
// errors are expected.
func ParseIdentity(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity cannot be empty")
	}
	return Identity(s), nil
}

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool {
	return i == ""
}

// String returns the raw principal token.
func (i Identity) String() string {
	return string(i)
}
