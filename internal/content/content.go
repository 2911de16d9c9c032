// Package content resolves ContentLocators against external content-addressed
// storage.
//
// The registry never calls this during create, update, or delete; locators
// are stored and compared opaquely. Only the read path (serving archive
// bytes) reaches the store, and failures surface as CodeUnavailable so
// callers can distinguish collaborator outages from registry errors.
package content

import (
	"context"

	"curio/pkg/domain"
)

// Store produces the bytes behind a content locator.
type Store interface {
	// Fetch returns the referenced bytes.
	//
	// Errors: CodeUnavailable when the backing store cannot produce the
	// content; CodeInvalidInput for a zero locator.
	Fetch(ctx context.Context, locator domain.ContentLocator) ([]byte, error)
}
