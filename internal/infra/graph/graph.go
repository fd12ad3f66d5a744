// Package graph provides clients for the external identity graph.
//
// This package contains:
//   - Graph: the interface consumed by identity resolution and protocol sync
//   - HTTPGraph: JSON-over-HTTP client for a remote graph service
//   - MemoryGraph: in-process graph with fault injection for dev mode and tests
package graph

import (
	"context"
	"errors"

	"github.com/vietddude/eventsync/internal/core/domain"
)

// ErrConflict is returned by CreateContextTag when the tag already exists.
var ErrConflict = errors.New("context tag already exists")

// Graph is the external identity graph.
type Graph interface {
	// Search finds identities with an exact email match in ownerID's namespace.
	Search(ctx context.Context, email, ownerID string) ([]domain.Identity, error)

	// Create creates a new identity.
	Create(ctx context.Context, fields domain.IdentityFields) (*domain.Identity, error)

	// CreateContextTag creates a context tag, returning ErrConflict if it exists.
	CreateContextTag(ctx context.Context, label string) (*domain.ContextTag, error)

	// AssignTags attaches interest tags to an identity.
	AssignTags(ctx context.Context, identityID string, tags []string) error

	// Follow seeds a relationship from identityID to targetID.
	Follow(ctx context.Context, identityID, targetID string) error
}

// Pinger is implemented by graph clients that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
