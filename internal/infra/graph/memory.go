package graph

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/eventsync/internal/core/apperr"
	"github.com/vietddude/eventsync/internal/core/domain"
)

// MemoryGraph is an in-process identity graph. Faults can be injected per
// email or globally to exercise degraded paths.
type MemoryGraph struct {
	mu         sync.RWMutex
	identities map[string]*domain.Identity
	byEmail    map[string]string
	tags       map[string]*domain.ContextTag
	follows    map[string][]string

	down        bool
	latency     time.Duration
	failSearch  map[string]bool
	failCreate  map[string]bool
	failEnrich  bool
	searchCalls int
	createCalls int
}

var errUnreachable = errors.New("identity graph unreachable")

// NewMemoryGraph creates an empty in-memory graph.
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{
		identities: make(map[string]*domain.Identity),
		byEmail:    make(map[string]string),
		tags:       make(map[string]*domain.ContextTag),
		follows:    make(map[string][]string),
		failSearch: make(map[string]bool),
		failCreate: make(map[string]bool),
	}
}

// SetDown makes every call fail with a connection error.
func (g *MemoryGraph) SetDown(down bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.down = down
}

// SetLatency delays every call by d, honoring context cancellation.
func (g *MemoryGraph) SetLatency(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.latency = d
}

// FailEmail makes both search and create fail for email.
func (g *MemoryGraph) FailEmail(email string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := normalizeEmail(email)
	g.failSearch[key] = true
	g.failCreate[key] = true
}

// FailSearch makes only the search for email fail.
func (g *MemoryGraph) FailSearch(email string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failSearch[normalizeEmail(email)] = true
}

// FailEnrichment makes AssignTags and Follow fail.
func (g *MemoryGraph) FailEnrichment(fail bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failEnrich = fail
}

// Seed stores an existing identity.
func (g *MemoryGraph) Seed(identity domain.Identity) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := identity
	g.identities[id.ID] = &id
	if id.Email != "" {
		g.byEmail[normalizeEmail(id.Email)] = id.ID
	}
}

// Get returns a stored identity.
func (g *MemoryGraph) Get(id string) (domain.Identity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	identity, ok := g.identities[id]
	if !ok {
		return domain.Identity{}, false
	}
	return *identity, true
}

// Follows returns the identities id follows.
func (g *MemoryGraph) Follows(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.follows[id]...)
}

// Calls returns how many search and create calls were made.
func (g *MemoryGraph) Calls() (search, create int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.searchCalls, g.createCalls
}

// Count returns the number of stored identities.
func (g *MemoryGraph) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.identities)
}

func (g *MemoryGraph) Search(ctx context.Context, email, ownerID string) ([]domain.Identity, error) {
	key := normalizeEmail(email)
	g.mu.Lock()
	g.searchCalls++
	fail := g.failSearch[key]
	g.mu.Unlock()

	if err := g.wait(ctx, fail); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.byEmail[key]
	if !ok {
		return nil, nil
	}
	return []domain.Identity{*g.identities[id]}, nil
}

func (g *MemoryGraph) Create(ctx context.Context, fields domain.IdentityFields) (*domain.Identity, error) {
	key := normalizeEmail(fields.Email)
	g.mu.Lock()
	g.createCalls++
	fail := key != "" && g.failCreate[key]
	g.mu.Unlock()

	if err := g.wait(ctx, fail); err != nil {
		return nil, err
	}

	identity := &domain.Identity{
		ID:            uuid.NewString(),
		DistributedID: "did:eventsync:" + uuid.NewString(),
		Handle:        handleFor(fields),
		DisplayName:   fields.DisplayName,
		Email:         fields.Email,
		Tags:          append([]string(nil), fields.Tags...),
		CreatedAt:     time.Now(),
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.identities[identity.ID] = identity
	if key != "" {
		g.byEmail[key] = identity.ID
	}
	out := *identity
	return &out, nil
}

func (g *MemoryGraph) CreateContextTag(ctx context.Context, label string) (*domain.ContextTag, error) {
	if err := g.wait(ctx, false); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(label))
	if _, exists := g.tags[key]; exists {
		return nil, ErrConflict
	}
	tag := &domain.ContextTag{ID: uuid.NewString(), Label: label}
	g.tags[key] = tag
	out := *tag
	return &out, nil
}

func (g *MemoryGraph) AssignTags(ctx context.Context, identityID string, tags []string) error {
	if err := g.wait(ctx, g.enrichFails()); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	identity, ok := g.identities[identityID]
	if !ok {
		return &apperr.ConnectionError{Endpoint: "memory", StatusCode: 404}
	}
	identity.Tags = mergeTags(identity.Tags, tags)
	return nil
}

func (g *MemoryGraph) Follow(ctx context.Context, identityID, targetID string) error {
	if err := g.wait(ctx, g.enrichFails()); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.follows[identityID] = append(g.follows[identityID], targetID)
	return nil
}

// Ping reports whether the graph is marked down.
func (g *MemoryGraph) Ping(ctx context.Context) error {
	return g.wait(ctx, false)
}

func (g *MemoryGraph) wait(ctx context.Context, fail bool) error {
	g.mu.RLock()
	down, latency := g.down, g.latency
	g.mu.RUnlock()

	if latency > 0 {
		t := time.NewTimer(latency)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	if down || fail {
		return &apperr.ConnectionError{Endpoint: "memory", Err: errUnreachable}
	}
	return nil
}

func (g *MemoryGraph) enrichFails() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.failEnrich
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func handleFor(fields domain.IdentityFields) string {
	base := fields.DisplayName
	if at := strings.IndexByte(fields.Email, '@'); at > 0 {
		base = fields.Email[:at]
	}
	base = strings.ToLower(strings.Join(strings.Fields(base), "."))
	if base == "" {
		base = "user"
	}
	return base + "-" + uuid.NewString()[:6]
}

func mergeTags(existing, add []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, t := range existing {
		seen[t] = true
	}
	for _, t := range add {
		if !seen[t] {
			existing = append(existing, t)
			seen[t] = true
		}
	}
	return existing
}
