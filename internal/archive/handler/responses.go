package handler

import (
	"sort"
	"time"

	"curio/internal/archive/models"
	"curio/pkg/domain"
)

// ArchiveResponse is the HTTP shape of a single archive.
type ArchiveResponse struct {
	ID          uint64    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	Category    string    `json:"category"`
	Location    string    `json:"location"`
	Year        int       `json:"year"`
	Owner       string    `json:"owner"`
	Visibility  string    `json:"visibility"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FromArchive converts a domain archive to its HTTP shape.
func FromArchive(a *models.Archive) *ArchiveResponse {
	return &ArchiveResponse{
		ID:          uint64(a.ID),
		Title:       a.Title,
		Description: a.Description,
		Content:     a.Content.String(),
		Category:    a.Category,
		Location:    a.Location,
		Year:        a.Year,
		Owner:       a.Owner.String(),
		Visibility:  string(a.Visibility),
		Tags:        a.Tags,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

// ArchiveListResponse wraps a list of archives.
type ArchiveListResponse struct {
	Archives []*ArchiveResponse `json:"archives"`
	Count    int                `json:"count"`
}

// FromArchives converts a slice of archives, preserving order.
func FromArchives(archives []*models.Archive) *ArchiveListResponse {
	out := make([]*ArchiveResponse, 0, len(archives))
	for _, a := range archives {
		out = append(out, FromArchive(a))
	}
	return &ArchiveListResponse{Archives: out, Count: len(out)}
}

// IDListResponse wraps an id-only listing.
type IDListResponse struct {
	IDs   []uint64 `json:"ids"`
	Count int      `json:"count"`
}

// FromIDs converts archive ids to their HTTP shape.
func FromIDs(ids []domain.ArchiveID) *IDListResponse {
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		out = append(out, uint64(id))
	}
	return &IDListResponse{IDs: out, Count: len(out)}
}

// GrantEntry is one row of an archive's grant table.
type GrantEntry struct {
	Grantee      string   `json:"grantee"`
	Capabilities []string `json:"capabilities"`
}

// GrantsResponse is the owner-facing grant table, sorted by grantee for a
// stable shape.
type GrantsResponse struct {
	Grants []GrantEntry `json:"grants"`
}

// FromGrants converts the grant table to its HTTP shape.
func FromGrants(grants map[domain.Identity]domain.CapabilitySet) *GrantsResponse {
	out := make([]GrantEntry, 0, len(grants))
	for grantee, caps := range grants {
		names := make([]string, 0, 3)
		for _, c := range caps.Capabilities() {
			names = append(names, c.String())
		}
		out = append(out, GrantEntry{Grantee: grantee.String(), Capabilities: names})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Grantee < out[j].Grantee })
	return &GrantsResponse{Grants: out}
}

// StatsResponse reports registry-wide counts.
type StatsResponse struct {
	TotalArchives int `json:"total_archives"`
}
