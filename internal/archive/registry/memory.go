package registry

import (
	"context"
	"sort"
	"sync"

	"curio/internal/archive/models"
	"curio/pkg/domain"
	dErrors "curio/pkg/domain-errors"
	"curio/pkg/requestcontext"
)

// InMemory is the in-process registry aggregate. A single RWMutex serializes
// every mutation, so each operation is observed as atomic and indivisible:
// no caller ever sees a partially applied patch, a grant that outlived its
// archive, or an index entry disagreeing with the primary map. Reads share
// the read lock and return deep copies.
type InMemory struct {
	mu         sync.RWMutex
	archives   map[domain.ArchiveID]*models.Archive
	grants     map[domain.ArchiveID]map[domain.Identity]domain.CapabilitySet
	byOwner    map[domain.Identity]map[domain.ArchiveID]struct{}
	byCategory map[string]map[domain.ArchiveID]struct{}
	nextID     domain.ArchiveID
}

// NewInMemory constructs an empty registry. The id counter starts at 1.
func NewInMemory() *InMemory {
	return &InMemory{
		archives:   make(map[domain.ArchiveID]*models.Archive),
		grants:     make(map[domain.ArchiveID]map[domain.Identity]domain.CapabilitySet),
		byOwner:    make(map[domain.Identity]map[domain.ArchiveID]struct{}),
		byCategory: make(map[string]map[domain.ArchiveID]struct{}),
		nextID:     1,
	}
}

// Create validates the draft, assigns the next id, and stores the archive
// with an empty grant table. The new archive is visible to reads immediately
// after return.
func (r *InMemory) Create(ctx context.Context, owner domain.Identity, draft models.ArchiveDraft) (domain.ArchiveID, error) {
	now := requestcontext.Now(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := models.NewArchive(r.nextID, owner, draft, now)
	if err != nil {
		return 0, err
	}
	r.nextID++

	r.archives[a.ID] = a
	r.indexAdd(a)
	return a.ID, nil
}

// Get returns a copy of the archive when the caller may view it.
func (r *InMemory) Get(ctx context.Context, caller domain.Identity, id domain.ArchiveID) (*models.Archive, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.archives[id]
	if !ok {
		return nil, errNotFound(id)
	}
	if !a.CapabilitiesFor(caller, r.grants[id][caller]).Has(domain.CapabilityView) {
		return nil, errForbidden("view")
	}
	return a.Clone(), nil
}

// Update applies the patch atomically and returns the updated archive.
// A validation failure on any field aborts the whole update with no partial
// effect, and the category index is maintained in the same critical section.
func (r *InMemory) Update(ctx context.Context, caller domain.Identity, id domain.ArchiveID, patch models.ArchivePatch) (*models.Archive, error) {
	now := requestcontext.Now(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.archives[id]
	if !ok {
		return nil, errNotFound(id)
	}
	if !a.CapabilitiesFor(caller, r.grants[id][caller]).Has(domain.CapabilityEdit) {
		return nil, errForbidden("edit")
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	oldCategory := a.Category
	patch.Apply(a, now)
	if a.Category != oldCategory {
		r.categoryRemove(oldCategory, id)
		r.categoryAdd(a.Category, id)
	}
	// Returned from the same critical section so an Edit-only grantee on a
	// private archive sees the result of their own write.
	return a.Clone(), nil
}

// Delete removes the archive, every grant scoped to it, and its index
// entries as one atomic step. The id is never reassigned.
func (r *InMemory) Delete(ctx context.Context, caller domain.Identity, id domain.ArchiveID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.archives[id]
	if !ok {
		return errNotFound(id)
	}
	if !a.CapabilitiesFor(caller, r.grants[id][caller]).Has(domain.CapabilityDelete) {
		return errForbidden("delete")
	}

	delete(r.archives, id)
	delete(r.grants, id)
	r.indexRemove(a)
	return nil
}

// Grant records a capability set for a grantee, overwriting any previous
// entry. Only the owner may grant; an Edit-holder cannot delegate. Granting
// the empty set is equivalent to revoke and is normalized away.
func (r *InMemory) Grant(ctx context.Context, caller domain.Identity, id domain.ArchiveID, grantee domain.Identity, caps domain.CapabilitySet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.archives[id]
	if !ok {
		return errNotFound(id)
	}
	if caller != a.Owner {
		return errForbidden("grant access to")
	}
	if grantee.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "grantee identity is required")
	}
	if grantee == a.Owner {
		return dErrors.New(dErrors.CodeInvalidInput, "owner already holds all capabilities")
	}
	if !caps.Valid() {
		return dErrors.New(dErrors.CodeInvalidInput, "capability set contains unknown capabilities")
	}

	if caps.IsEmpty() {
		delete(r.grants[id], grantee)
		return nil
	}
	if r.grants[id] == nil {
		r.grants[id] = make(map[domain.Identity]domain.CapabilitySet)
	}
	r.grants[id][grantee] = caps
	return nil
}

// Revoke removes the grantee's entry. Revoking an absent grant succeeds.
func (r *InMemory) Revoke(ctx context.Context, caller domain.Identity, id domain.ArchiveID, grantee domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.archives[id]
	if !ok {
		return errNotFound(id)
	}
	if caller != a.Owner {
		return errForbidden("revoke access to")
	}
	delete(r.grants[id], grantee)
	return nil
}

// Grants returns the archive's grant table. Owner-only.
func (r *InMemory) Grants(ctx context.Context, caller domain.Identity, id domain.ArchiveID) (map[domain.Identity]domain.CapabilitySet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.archives[id]
	if !ok {
		return nil, errNotFound(id)
	}
	if caller != a.Owner {
		return nil, errForbidden("list grants for")
	}
	out := make(map[domain.Identity]domain.CapabilitySet, len(r.grants[id]))
	for grantee, caps := range r.grants[id] {
		out[grantee] = caps
	}
	return out, nil
}

// ListByOwner returns the ids owned by the identity in ascending order.
// No matches is an empty slice, not an error.
func (r *InMemory) ListByOwner(ctx context.Context, owner domain.Identity) ([]domain.ArchiveID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedIDs(r.byOwner[owner]), nil
}

// ListByCategory returns the ids in the category in ascending order.
func (r *InMemory) ListByCategory(ctx context.Context, category string) ([]domain.ArchiveID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedIDs(r.byCategory[category]), nil
}

// Search returns caller-visible archives whose title, description, or tags
// contain the query as a case-insensitive substring, optionally restricted to
// a category. Results are reverse-chronological by creation time with id as
// tiebreak, which keeps the order stable across repeated calls.
func (r *InMemory) Search(ctx context.Context, caller domain.Identity, query string, category *string) ([]*models.Archive, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Archive
	for id, a := range r.archives {
		if !a.CapabilitiesFor(caller, r.grants[id][caller]).Has(domain.CapabilityView) {
			continue
		}
		if !searchMatch(a, query, category) {
			continue
		}
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// All returns every live archive ordered by id. Visibility does not apply;
// this backs the operator surface only.
func (r *InMemory) All(ctx context.Context) ([]*models.Archive, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Archive, 0, len(r.archives))
	for _, a := range r.archives {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Total reports the number of live archives.
func (r *InMemory) Total(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.archives), nil
}

// indexAdd and indexRemove run under the write lock; the indexes only ever
// change together with the primary map.
func (r *InMemory) indexAdd(a *models.Archive) {
	if r.byOwner[a.Owner] == nil {
		r.byOwner[a.Owner] = make(map[domain.ArchiveID]struct{})
	}
	r.byOwner[a.Owner][a.ID] = struct{}{}
	r.categoryAdd(a.Category, a.ID)
}

func (r *InMemory) indexRemove(a *models.Archive) {
	delete(r.byOwner[a.Owner], a.ID)
	if len(r.byOwner[a.Owner]) == 0 {
		delete(r.byOwner, a.Owner)
	}
	r.categoryRemove(a.Category, a.ID)
}

func (r *InMemory) categoryAdd(category string, id domain.ArchiveID) {
	if r.byCategory[category] == nil {
		r.byCategory[category] = make(map[domain.ArchiveID]struct{})
	}
	r.byCategory[category][id] = struct{}{}
}

func (r *InMemory) categoryRemove(category string, id domain.ArchiveID) {
	delete(r.byCategory[category], id)
	if len(r.byCategory[category]) == 0 {
		delete(r.byCategory, category)
	}
}

func sortedIDs(set map[domain.ArchiveID]struct{}) []domain.ArchiveID {
	ids := make([]domain.ArchiveID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
