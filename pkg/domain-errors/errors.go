// Package domainerrors provides coded errors shared across domain services.
//
// Services and the registry return these so transport layers can translate
// them into HTTP responses without string matching. Infrastructure layers
// return pkg/platform/sentinel errors instead; services wrap those into coded
// errors at the boundary.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error for callers and transports.
type Code string

const (
	// CodeInvalidInput marks malformed domain input. The caller must correct
	// the payload and retry.
	CodeInvalidInput Code = "invalid_input"
	// CodeBadRequest marks a malformed transport payload (bad JSON, bad path
	// parameter) before domain validation runs.
	CodeBadRequest Code = "bad_request"
	// CodeUnauthorized marks missing or unverifiable caller identity.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden marks an authorization failure. Terminal for the caller;
	// retrying with the same identity and capabilities cannot succeed.
	CodeForbidden Code = "forbidden"
	// CodeNotFound marks a reference to an entity that does not exist.
	CodeNotFound Code = "not_found"
	// CodeConflict marks a uniqueness or state conflict.
	CodeConflict Code = "conflict"
	// CodeUnavailable marks a collaborator failure (content store, broker).
	CodeUnavailable Code = "unavailable"
	// CodeInvariantViolation marks a broken domain invariant. Constructors
	// return it; services translate it to CodeInvalidInput at trust
	// boundaries.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeInternal marks an unexpected internal failure.
	CodeInternal Code = "internal"
)

// Error is a coded domain error. It optionally wraps a cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err or any error in its chain carries the code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		de = nil
	}
	return false
}

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost coded message, or a generic one.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

// ToHTTPStatus maps a code to its HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput, CodeBadRequest, CodeInvariantViolation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
