package models

import (
	"strings"
	"time"

	"curio/pkg/domain"
	dErrors "curio/pkg/domain-errors"
	platformstrings "curio/pkg/platform/strings"
)

// Visibility controls who may view an archive without an explicit grant.
type Visibility string

const (
	// VisibilityPublic archives are viewable by any identity regardless of
	// the ACL.
	VisibilityPublic Visibility = "public"
	// VisibilityPrivate archives require ownership or an explicit View grant.
	VisibilityPrivate Visibility = "private"
)

// ParseVisibility constructs a Visibility from external input.
func ParseVisibility(s string) (Visibility, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "public":
		return VisibilityPublic, nil
	case "private":
		return VisibilityPrivate, nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "visibility must be public or private")
	}
}

// IsValid reports whether the visibility is a known enum value.
func (v Visibility) IsValid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// Archive is a content-addressed cultural-heritage record with exactly one
// owner.
//
// Invariants:
//   - ID is positive and never reused
//   - Title is non-empty
//   - Content is a non-empty locator, immutable after creation (changing
//     content means creating a new archive)
//   - Owner and CreatedAt are set once at creation and never change
//   - Tags carry no duplicates; insertion order is preserved for display
type Archive struct {
	ID          domain.ArchiveID      `json:"id"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Content     domain.ContentLocator `json:"content"`
	Category    string                `json:"category"`
	Location    string                `json:"location"`
	Year        int                   `json:"year"`
	Owner       domain.Identity       `json:"owner"`
	Visibility  Visibility            `json:"visibility"`
	Tags        []string              `json:"tags"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// CapabilitiesFor derives the capabilities a caller holds on this archive.
// The owner holds every capability unconditionally and can never be locked
// out by grants. Non-owners hold exactly their ACL entry (granted), plus View
// when the archive is public. Authorization is re-derived from this state on
// every operation; nothing is cached.
func (a *Archive) CapabilitiesFor(caller domain.Identity, granted domain.CapabilitySet) domain.CapabilitySet {
	if caller == a.Owner {
		return domain.AllCapabilities
	}
	if a.Visibility == VisibilityPublic {
		granted = granted.With(domain.CapabilityView)
	}
	return granted
}

// Clone returns a deep copy so callers can never reach the registry's
// internal state through a returned archive.
func (a *Archive) Clone() *Archive {
	dup := *a
	if a.Tags != nil {
		dup.Tags = append([]string(nil), a.Tags...)
	}
	return &dup
}

// MatchesQuery reports whether the archive matches a case-insensitive
// substring query over title, description, and tags. An empty query matches
// everything.
func (a *Archive) MatchesQuery(query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(a.Title), q) {
		return true
	}
	if strings.Contains(strings.ToLower(a.Description), q) {
		return true
	}
	for _, tag := range a.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// ArchiveDraft is the validated creation payload. Owner and timestamps come
// from the request context, never from the draft itself.
type ArchiveDraft struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Content     domain.ContentLocator `json:"content"`
	Category    string                `json:"category"`
	Location    string                `json:"location"`
	Year        int                   `json:"year"`
	Visibility  Visibility            `json:"visibility"`
	Tags        []string              `json:"tags"`
}

// Validate enforces the creation invariants.
//
// Errors: CodeInvalidInput when the title is blank, the content locator is
// missing, or the visibility is not a known value.
func (d *ArchiveDraft) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "title cannot be empty")
	}
	if d.Content.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "content locator is required")
	}
	if d.Visibility == "" {
		d.Visibility = VisibilityPrivate
	}
	if !d.Visibility.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "visibility must be public or private")
	}
	return nil
}

// NewArchive constructs an archive from a validated draft.
func NewArchive(id domain.ArchiveID, owner domain.Identity, d ArchiveDraft, now time.Time) (*Archive, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "owner identity is required")
	}
	return &Archive{
		ID:          id,
		Title:       strings.TrimSpace(d.Title),
		Description: d.Description,
		Content:     d.Content,
		Category:    strings.TrimSpace(d.Category),
		Location:    d.Location,
		Year:        d.Year,
		Owner:       owner,
		Visibility:  d.Visibility,
		Tags:        NormalizeTags(d.Tags),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ArchivePatch describes a partial update. Nil fields are left untouched.
// Content, Owner, CreatedAt, and ID are deliberately not representable here:
// content immutability is the content-addressing contract, and ownership
// transfer is not an operation of this registry.
type ArchivePatch struct {
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	Category    *string     `json:"category,omitempty"`
	Location    *string     `json:"location,omitempty"`
	Year        *int        `json:"year,omitempty"`
	Visibility  *Visibility `json:"visibility,omitempty"`
	Tags        *[]string   `json:"tags,omitempty"`
}

// IsZero reports whether the patch changes nothing.
func (p *ArchivePatch) IsZero() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil &&
		p.Location == nil && p.Year == nil && p.Visibility == nil && p.Tags == nil
}

// Validate checks every patched field before any of them is applied, so a
// bad field aborts the whole update with no partial effect.
func (p *ArchivePatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "title cannot be empty")
	}
	if p.Visibility != nil && !p.Visibility.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "visibility must be public or private")
	}
	return nil
}

// Apply writes the patched fields onto the archive. Callers must Validate
// first; Apply itself never fails partway.
func (p *ArchivePatch) Apply(a *Archive, now time.Time) {
	if p.Title != nil {
		a.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		a.Description = *p.Description
	}
	if p.Category != nil {
		a.Category = strings.TrimSpace(*p.Category)
	}
	if p.Location != nil {
		a.Location = *p.Location
	}
	if p.Year != nil {
		a.Year = *p.Year
	}
	if p.Visibility != nil {
		a.Visibility = *p.Visibility
	}
	if p.Tags != nil {
		a.Tags = NormalizeTags(*p.Tags)
	}
	a.UpdatedAt = now
}

// NormalizeTags trims blanks and collapses duplicates while preserving the
// first-seen order. Tags stay case-sensitive; search lowers them at match
// time instead.
func NormalizeTags(tags []string) []string {
	out := platformstrings.DedupeAndTrim(tags)
	if len(out) == 0 {
		return nil
	}
	return out
}
