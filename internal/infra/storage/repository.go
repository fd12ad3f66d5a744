package storage

import (
	"context"
	"errors"

	"github.com/vietddude/eventsync/internal/core/domain"
)

var (
	// ErrNotFound is returned when a requested record doesn't exist
	ErrNotFound = errors.New("not found")
)

// ConfigRepository persists generated event configurations
type ConfigRepository interface {
	// Save upserts cfg for ownerID by cfg.ID, assigning an ID when empty, and returns it
	Save(ctx context.Context, ownerID string, cfg *domain.EventConfig) (string, error)

	// Get retrieves a configuration by ID
	Get(ctx context.Context, id string) (*domain.EventConfig, error)

	// ListByOwner returns the most recent configurations of an owner
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]*domain.EventConfig, error)
}

// SyncRunRepository persists protocol sync reports
type SyncRunRepository interface {
	// SaveRun stores a finished sync report
	SaveRun(ctx context.Context, report domain.SyncReport) error

	// SaveRecords stores the per-entry outcome of a bulk phase
	SaveRecords(
		ctx context.Context,
		runID string,
		phase domain.SyncPhase,
		targets []domain.SyncTarget,
		records []domain.IdentityRecord,
	) error

	// GetRun retrieves a sync report by run ID
	GetRun(ctx context.Context, runID string) (*domain.SyncReport, error)
}
