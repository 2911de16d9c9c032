package domain

import (
	"strconv"

	dErrors "curio/pkg/domain-errors"
)

// ArchiveID identifies an archive. IDs are positive, assigned monotonically
// by the registry, and never reused, even after deletion.
type ArchiveID uint64

// ParseArchiveID constructs an ArchiveID from a path or query parameter.
//
// Errors: returns CodeInvalidInput when the value is not a positive integer.
func ParseArchiveID(s string) (ArchiveID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "archive id must be a positive integer")
	}
	return ArchiveID(n), nil
}

// IsZero reports whether the id is unset. Zero is never a valid archive id.
func (id ArchiveID) IsZero() bool {
	return id == 0
}

// String formats the id in decimal.
func (id ArchiveID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}
