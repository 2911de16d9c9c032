package handler

import (
	"strings"

	"curio/internal/archive/models"
	"curio/pkg/domain"
	dErrors "curio/pkg/domain-errors"
)

// CreateArchiveRequest is the HTTP request body for POST /archives.
type CreateArchiveRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Content     string   `json:"content"`
	Category    string   `json:"category"`
	Location    string   `json:"location"`
	Year        int      `json:"year"`
	Visibility  string   `json:"visibility"`
	Tags        []string `json:"tags"`

	// Parsed values (populated by Validate)
	parsedDraft models.ArchiveDraft
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *CreateArchiveRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	locator, err := domain.ParseContentLocator(r.Content)
	if err != nil {
		return err
	}

	visibility := models.VisibilityPrivate
	if strings.TrimSpace(r.Visibility) != "" {
		visibility, err = models.ParseVisibility(r.Visibility)
		if err != nil {
			return err
		}
	}

	r.parsedDraft = models.ArchiveDraft{
		Title:       strings.TrimSpace(r.Title),
		Description: r.Description,
		Content:     locator,
		Category:    strings.TrimSpace(r.Category),
		Location:    r.Location,
		Year:        r.Year,
		Visibility:  visibility,
		Tags:        r.Tags,
	}
	return r.parsedDraft.Validate()
}

// ParsedDraft returns the validated draft.
func (r *CreateArchiveRequest) ParsedDraft() models.ArchiveDraft {
	return r.parsedDraft
}

// UpdateArchiveRequest is the HTTP request body for PATCH /archives/{id}.
// Absent fields are left untouched. The content locator is immutable; its
// field exists only so an attempt to change it is rejected instead of being
// silently dropped by the decoder.
type UpdateArchiveRequest struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Content     *string   `json:"content"`
	Category    *string   `json:"category"`
	Location    *string   `json:"location"`
	Year        *int      `json:"year"`
	Visibility  *string   `json:"visibility"`
	Tags        *[]string `json:"tags"`

	parsedPatch models.ArchivePatch
}

// Validate validates and parses the request.
func (r *UpdateArchiveRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Content != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "content is immutable; create a new archive to change it")
	}

	patch := models.ArchivePatch{
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Location:    r.Location,
		Year:        r.Year,
		Tags:        r.Tags,
	}
	if r.Visibility != nil {
		visibility, err := models.ParseVisibility(*r.Visibility)
		if err != nil {
			return err
		}
		patch.Visibility = &visibility
	}
	if patch.IsZero() {
		return dErrors.New(dErrors.CodeBadRequest, "update must change at least one field")
	}
	if err := patch.Validate(); err != nil {
		return err
	}

	r.parsedPatch = patch
	return nil
}

// ParsedPatch returns the validated patch.
func (r *UpdateArchiveRequest) ParsedPatch() models.ArchivePatch {
	return r.parsedPatch
}

// GrantRequest is the HTTP request body for POST /archives/{id}/grants.
// An empty capability list removes the grantee's entry.
type GrantRequest struct {
	Grantee      string   `json:"grantee"`
	Capabilities []string `json:"capabilities"`

	parsedGrantee      domain.Identity
	parsedCapabilities domain.CapabilitySet
}

// Validate validates and parses the request.
func (r *GrantRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	grantee, err := domain.ParseIdentity(r.Grantee)
	if err != nil {
		return err
	}
	r.parsedGrantee = grantee

	var caps domain.CapabilitySet
	for _, name := range r.Capabilities {
		c, err := domain.ParseCapability(name)
		if err != nil {
			return err
		}
		caps = caps.With(c)
	}
	r.parsedCapabilities = caps
	return nil
}

// ParsedGrantee returns the validated grantee identity.
func (r *GrantRequest) ParsedGrantee() domain.Identity {
	return r.parsedGrantee
}

// ParsedCapabilities returns the validated capability set.
func (r *GrantRequest) ParsedCapabilities() domain.CapabilitySet {
	return r.parsedCapabilities
}
