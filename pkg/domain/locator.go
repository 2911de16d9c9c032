package domain

import (
	"strings"

	dErrors "curio/pkg/domain-errors"
)

// ContentLocator is an opaque, immutable reference to externally stored,
// content-addressed bytes (an IPFS-style hash in the reference deployment).
// The registry stores and compares locators but never inspects the payload
// behind them. Distinct archives may reference the same locator.
type ContentLocator string

// ParseContentLocator constructs a ContentLocator from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or blank.
func ParseContentLocator(s string) (ContentLocator, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "content locator cannot be empty")
	}
	return ContentLocator(s), nil
}

// IsZero reports whether the locator is unset.
func (l ContentLocator) IsZero() bool {
	return l == ""
}

// String returns the raw locator value.
func (l ContentLocator) String() string {
	return string(l)
}
