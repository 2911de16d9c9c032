package audit

import (
	"time"

	"curio/pkg/domain"
)

// Action names the registry operation an event records.
type Action string

const (
	ActionArchiveCreated Action = "archive.created"
	ActionArchiveUpdated Action = "archive.updated"
	ActionArchiveDeleted Action = "archive.deleted"
	ActionAccessGranted  Action = "access.granted"
	ActionAccessRevoked  Action = "access.revoked"
	ActionAccessDenied   Action = "access.denied"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID           string               `json:"id"`
	Timestamp    time.Time            `json:"timestamp"`
	Actor        domain.Identity      `json:"actor"`
	Action       Action               `json:"action"`
	ArchiveID    domain.ArchiveID     `json:"archive_id,omitempty"`
	Grantee      domain.Identity      `json:"grantee,omitempty"`
	Capabilities domain.CapabilitySet `json:"capabilities,omitempty"`
	Reason       string               `json:"reason,omitempty"`
}
