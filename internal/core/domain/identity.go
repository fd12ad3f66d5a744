package domain

import "time"

// Role hints how a synced person participates in an event.
type Role string

const (
	RoleAttendee  Role = "attendee"
	RoleSpeaker   Role = "speaker"
	RoleOrganizer Role = "organizer"
)

// Identity is an identity as stored by the external identity graph.
type Identity struct {
	ID            string    `json:"id"`
	DistributedID string    `json:"distributed_id,omitempty"`
	Handle        string    `json:"handle,omitempty"`
	DisplayName   string    `json:"display_name,omitempty"`
	Email         string    `json:"email,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
}

// IdentityFields are the best-effort fields sent when creating an identity.
type IdentityFields struct {
	DisplayName      string   `json:"display_name"`
	Email            string   `json:"email,omitempty"`
	ExternalCallerID string   `json:"external_caller_id,omitempty"`
	OwnerID          string   `json:"owner_id,omitempty"`
	Role             Role     `json:"role,omitempty"`
	Tags             []string `json:"tags,omitempty"`
}

// IdentityRecord is the result of resolving an identity. It is always
// returned, even when the graph is unreachable; IsFallback marks records
// that were synthesized locally.
type IdentityRecord struct {
	ID               string `json:"id"`
	ExternalCallerID string `json:"external_caller_id,omitempty"`
	DistributedID    string `json:"distributed_id,omitempty"`
	Handle           string `json:"handle,omitempty"`
	IsFallback       bool   `json:"is_fallback"`
}

// ContextTag is a graph-side label used to group identities by session.
type ContextTag struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// SyncTarget carries the minimal fields needed to resolve or create an identity.
type SyncTarget struct {
	Name  string   `json:"name"            yaml:"name"`
	Email string   `json:"email,omitempty" yaml:"email"`
	Tags  []string `json:"tags,omitempty"  yaml:"tags"`
	Role  Role     `json:"role,omitempty"  yaml:"role"`
}

// SyncBatchResult aggregates a bulk synchronization.
// CreatedCount + FailedCount always equals len(Records).
type SyncBatchResult struct {
	CreatedCount int              `json:"created_count"`
	FailedCount  int              `json:"failed_count"`
	Records      []IdentityRecord `json:"records"`
}

// RateLimitDecision is returned by the external quota counter.
type RateLimitDecision struct {
	Allowed bool
	ResetAt time.Time
}
