package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/eventsync/internal/core/domain"
	"github.com/vietddude/eventsync/internal/infra/storage"
)

type cacheEntry struct {
	rec       domain.IdentityRecord
	expiresAt time.Time
}

type storedConfig struct {
	ownerID string
	cfg     *domain.EventConfig
}

type MemoryStorage struct {
	configs map[string]*storedConfig
	runs    map[string]domain.SyncReport
	records map[string][]domain.IdentityRecord
	cache   map[string]cacheEntry
	windows map[string][]time.Time
	now     func() time.Time
	mu      sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		configs: make(map[string]*storedConfig),
		runs:    make(map[string]domain.SyncReport),
		records: make(map[string][]domain.IdentityRecord),
		cache:   make(map[string]cacheEntry),
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// SetClock replaces the time source, for tests.
func (s *MemoryStorage) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// -----------------------------------------------------------------------------
// Config Repository
// -----------------------------------------------------------------------------

type ConfigRepo struct {
	store *MemoryStorage
}

func NewConfigRepo(store *MemoryStorage) *ConfigRepo {
	return &ConfigRepo{store: store}
}

func (r *ConfigRepo) Save(ctx context.Context, ownerID string, cfg *domain.EventConfig) (string, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	copied := *cfg
	r.store.configs[cfg.ID] = &storedConfig{ownerID: ownerID, cfg: &copied}
	return cfg.ID, nil
}

func (r *ConfigRepo) Get(ctx context.Context, id string) (*domain.EventConfig, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	stored, ok := r.store.configs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *stored.cfg
	return &copied, nil
}

func (r *ConfigRepo) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*domain.EventConfig, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.EventConfig
	for _, stored := range r.store.configs {
		if stored.ownerID == ownerID {
			copied := *stored.cfg
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GeneratedAt.After(out[j].GeneratedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Sync Run Repository
// -----------------------------------------------------------------------------

type SyncRunRepo struct {
	store *MemoryStorage
}

func NewSyncRunRepo(store *MemoryStorage) *SyncRunRepo {
	return &SyncRunRepo{store: store}
}

func (r *SyncRunRepo) SaveRun(ctx context.Context, report domain.SyncReport) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.runs[report.RunID] = report
	return nil
}

func (r *SyncRunRepo) SaveRecords(
	ctx context.Context,
	runID string,
	phase domain.SyncPhase,
	targets []domain.SyncTarget,
	records []domain.IdentityRecord,
) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	key := runID + "/" + string(phase)
	r.store.records[key] = append(r.store.records[key], records...)
	return nil
}

func (r *SyncRunRepo) GetRun(ctx context.Context, runID string) (*domain.SyncReport, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	report, ok := r.store.runs[runID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &report, nil
}

// Records returns the stored records of a run phase.
func (r *SyncRunRepo) Records(runID string, phase domain.SyncPhase) []domain.IdentityRecord {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return append([]domain.IdentityRecord(nil), r.store.records[runID+"/"+string(phase)]...)
}

// -----------------------------------------------------------------------------
// Identity Cache
// -----------------------------------------------------------------------------

type IdentityCache struct {
	store *MemoryStorage
}

func NewIdentityCache(store *MemoryStorage) *IdentityCache {
	return &IdentityCache{store: store}
}

func (c *IdentityCache) Get(ctx context.Context, key string) (*domain.IdentityRecord, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	entry, ok := c.store.cache[key]
	if !ok || c.store.now().After(entry.expiresAt) {
		return nil, nil
	}
	rec := entry.rec
	return &rec, nil
}

// Put stores rec unless a live entry exists, so a late write never replaces
// an earlier resolution.
func (c *IdentityCache) Put(ctx context.Context, key string, rec domain.IdentityRecord, ttl time.Duration) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	now := c.store.now()
	if entry, ok := c.store.cache[key]; ok && now.Before(entry.expiresAt) {
		return nil
	}
	c.store.cache[key] = cacheEntry{rec: rec, expiresAt: now.Add(ttl)}
	return nil
}

// -----------------------------------------------------------------------------
// Rate Limit Store
// -----------------------------------------------------------------------------

type RateLimitStore struct {
	store *MemoryStorage
}

func NewRateLimitStore(store *MemoryStorage) *RateLimitStore {
	return &RateLimitStore{store: store}
}

// CheckAndIncrement counts a call in callerID's rolling window if quota allows.
func (r *RateLimitStore) CheckAndIncrement(
	ctx context.Context,
	callerID string,
	quota int,
	window time.Duration,
) (domain.RateLimitDecision, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := r.store.now()
	if quota <= 0 {
		return domain.RateLimitDecision{Allowed: true, ResetAt: now.Add(window)}, nil
	}
	cutoff := now.Add(-window)
	hits := r.store.windows[callerID]
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= quota {
		r.store.windows[callerID] = kept
		return domain.RateLimitDecision{Allowed: false, ResetAt: kept[0].Add(window)}, nil
	}

	kept = append(kept, now)
	r.store.windows[callerID] = kept
	return domain.RateLimitDecision{Allowed: true, ResetAt: kept[0].Add(window)}, nil
}
