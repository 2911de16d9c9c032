// Package registry is the sole authority over archive and ACL state.
//
// Every mutation and every visibility-sensitive read re-derives authorization
// from the stored owner and grant table; callers never pass pre-computed
// permission flags. Two implementations exist: InMemory, which serializes all
// state under a single lock, and Postgres, which relies on per-operation
// transactions. Both enforce the same invariants:
//
//   - ids are assigned monotonically and never reused, even after deletion
//   - the owner holds every capability and cannot be locked out by grants
//   - grant and revoke are owner-only (capability delegation is not
//     transitive)
//   - deleting an archive removes its grants atomically; grants never
//     outlive their archive
//   - owner and category indexes change in the same critical section as the
//     primary record, so they can never disagree with it
package registry

import (
	"curio/internal/archive/models"
	"curio/pkg/domain"
	dErrors "curio/pkg/domain-errors"
)

func errNotFound(id domain.ArchiveID) error {
	return dErrors.New(dErrors.CodeNotFound, "archive "+id.String()+" not found")
}

func errForbidden(action string) error {
	return dErrors.New(dErrors.CodeForbidden, "caller may not "+action+" this archive")
}

// searchMatch reports whether an archive belongs in a search result for the
// given query and optional category restriction. Visibility is checked by the
// caller; this covers only the filter predicate.
func searchMatch(a *models.Archive, query string, category *string) bool {
	if category != nil && a.Category != *category {
		return false
	}
	return a.MatchesQuery(query)
}
