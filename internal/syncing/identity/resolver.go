// Package identity resolves external identities against the identity graph.
//
// Resolution never fails: it returns a real record (from cache, search or
// creation) or a locally synthesized fallback flagged with IsFallback so
// callers can continue in degraded mode while the graph is unavailable.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/eventsync/internal/core/apperr"
	"github.com/vietddude/eventsync/internal/core/domain"
	"github.com/vietddude/eventsync/internal/core/resilience"
	"github.com/vietddude/eventsync/internal/infra/graph"
	"github.com/vietddude/eventsync/internal/metrics"
)

// AnonymousName is used when neither a display name nor an email is known.
const AnonymousName = "Anonymous User"

// Config holds identity resolution settings.
type Config struct {
	SearchTimeout time.Duration `yaml:"search_timeout"`
	CreateTimeout time.Duration `yaml:"create_timeout"`
	EnrichTimeout time.Duration `yaml:"enrich_timeout"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	FallbackTTL   time.Duration `yaml:"fallback_ttl"`
}

// DefaultConfig returns the standard resolution budgets.
func DefaultConfig() Config {
	return Config{
		SearchTimeout: 3 * time.Second,
		CreateTimeout: 5 * time.Second,
		EnrichTimeout: 10 * time.Second,
		CacheTTL:      24 * time.Hour,
		FallbackTTL:   time.Minute,
	}
}

// Hints are the optional profile fields used to find or create an identity.
type Hints struct {
	Email            string
	DisplayName      string
	ExternalCallerID string
	OwnerID          string
	SessionID        string
	Tags             []string
	Role             domain.Role
}

// Cache stores resolved records for a caller session. Get returns nil on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (*domain.IdentityRecord, error)
	Put(ctx context.Context, key string, rec domain.IdentityRecord, ttl time.Duration) error
}

// Resolver implements search-or-create-or-fallback.
type Resolver struct {
	graph    graph.Graph
	cache    Cache
	enricher *Enricher
	cfg      Config
	log      *slog.Logger
}

// NewResolver creates a resolver. cache and enricher may be nil.
func NewResolver(g graph.Graph, cache Cache, enricher *Enricher, cfg Config) *Resolver {
	def := DefaultConfig()
	if cfg.SearchTimeout == 0 {
		cfg.SearchTimeout = def.SearchTimeout
	}
	if cfg.CreateTimeout == 0 {
		cfg.CreateTimeout = def.CreateTimeout
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.FallbackTTL == 0 {
		cfg.FallbackTTL = def.FallbackTTL
	}
	return &Resolver{
		graph:    g,
		cache:    cache,
		enricher: enricher,
		cfg:      cfg,
		log:      slog.Default().With("component", "identity"),
	}
}

// EnsureIdentity returns the identity for hints, creating it if needed.
// It never returns an error and never panics past its boundary.
func (r *Resolver) EnsureIdentity(ctx context.Context, h Hints) (rec domain.IdentityRecord) {
	h.Email = strings.TrimSpace(h.Email)

	defer func() {
		if p := recover(); p != nil {
			r.log.Error("Identity resolution panicked",
				append(apperr.LogAttrs("identity.ensure", h.Email, 1), "panic", fmt.Sprint(p))...)
			rec = r.fallback(h)
		}
	}()

	key := CacheKey(h)
	if cached := r.lookup(ctx, key); cached != nil {
		metrics.IdentityResolutions.WithLabelValues("cache").Inc()
		return *cached
	}

	if h.Email != "" {
		if found := r.search(ctx, h); found != nil {
			metrics.IdentityResolutions.WithLabelValues("search").Inc()
			rec = toRecord(*found, h)
			r.store(ctx, key, rec, r.cfg.CacheTTL)
			return rec
		}
	}

	created, err := resilience.WithTimeout(ctx, r.cfg.CreateTimeout,
		func(ctx context.Context) (*domain.Identity, error) {
			return r.graph.Create(ctx, fieldsFor(h))
		})
	if err == nil && created != nil {
		metrics.IdentityResolutions.WithLabelValues("create").Inc()
		if r.enricher != nil {
			r.enricher.Spawn(ctx, *created, h)
		}
		rec = toRecord(*created, h)
		r.store(ctx, key, rec, r.cfg.CacheTTL)
		return rec
	}

	r.log.Warn("Identity graph unavailable, using fallback identity",
		append(apperr.LogAttrs("identity.create", h.Email, 1),
			"kind", apperr.KindOf(err).String(), "error", err)...)
	metrics.IdentityResolutions.WithLabelValues("fallback").Inc()

	rec = r.fallback(h)
	r.store(ctx, key, rec, r.cfg.FallbackTTL)
	return rec
}

func (r *Resolver) search(ctx context.Context, h Hints) *domain.Identity {
	found, err := resilience.WithTimeout(ctx, r.cfg.SearchTimeout,
		func(ctx context.Context) ([]domain.Identity, error) {
			return r.graph.Search(ctx, h.Email, h.OwnerID)
		})
	if err != nil {
		r.log.Warn("Identity search failed, treating as not found",
			append(apperr.LogAttrs("identity.search", h.Email, 1),
				"kind", apperr.KindOf(err).String(), "error", err)...)
		return nil
	}
	for i := range found {
		if strings.EqualFold(found[i].Email, h.Email) {
			return &found[i]
		}
	}
	return nil
}

func (r *Resolver) lookup(ctx context.Context, key string) *domain.IdentityRecord {
	if r.cache == nil || key == "" {
		return nil
	}
	rec, err := r.cache.Get(ctx, key)
	if err != nil {
		r.log.Warn("Identity cache read failed", "key", key, "error", err)
		return nil
	}
	return rec
}

func (r *Resolver) store(ctx context.Context, key string, rec domain.IdentityRecord, ttl time.Duration) {
	if r.cache == nil || key == "" {
		return
	}
	if err := r.cache.Put(ctx, key, rec, ttl); err != nil {
		r.log.Warn("Identity cache write failed", "key", key, "error", err)
	}
}

func (r *Resolver) fallback(h Hints) domain.IdentityRecord {
	return domain.IdentityRecord{
		ID:               "fallback-" + uuid.NewString(),
		ExternalCallerID: h.ExternalCallerID,
		Handle:           fallbackHandle(h),
		IsFallback:       true,
	}
}

// CacheKey returns the session-scoped cache key for hints, or "" when
// hints carry no session scope or nothing stable to key on.
func CacheKey(h Hints) string {
	session := h.SessionID
	if session == "" {
		session = h.OwnerID
	}
	if session == "" {
		return ""
	}
	var id string
	switch {
	case h.Email != "":
		id = "email:" + strings.ToLower(strings.TrimSpace(h.Email))
	case h.ExternalCallerID != "":
		id = "caller:" + h.ExternalCallerID
	default:
		return ""
	}
	return session + ":" + id
}

// DisplayName picks the best available name: display name, then email,
// then AnonymousName.
func DisplayName(h Hints) string {
	if name := strings.TrimSpace(h.DisplayName); name != "" {
		return name
	}
	if h.Email != "" {
		return h.Email
	}
	return AnonymousName
}

func fieldsFor(h Hints) domain.IdentityFields {
	return domain.IdentityFields{
		DisplayName:      DisplayName(h),
		Email:            h.Email,
		ExternalCallerID: h.ExternalCallerID,
		OwnerID:          h.OwnerID,
		Role:             h.Role,
		Tags:             h.Tags,
	}
}

func toRecord(identity domain.Identity, h Hints) domain.IdentityRecord {
	return domain.IdentityRecord{
		ID:               identity.ID,
		ExternalCallerID: h.ExternalCallerID,
		DistributedID:    identity.DistributedID,
		Handle:           identity.Handle,
	}
}

func fallbackHandle(h Hints) string {
	name := DisplayName(h)
	if at := strings.IndexByte(name, '@'); at > 0 {
		name = name[:at]
	}
	return strings.ToLower(strings.Join(strings.Fields(name), "."))
}
