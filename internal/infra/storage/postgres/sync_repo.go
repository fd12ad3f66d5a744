package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/eventsync/internal/core/domain"
	"github.com/vietddude/eventsync/internal/infra/storage"
)

// SyncRunRepo implements storage.SyncRunRepository using PostgreSQL.
type SyncRunRepo struct {
	db *DB
}

// NewSyncRunRepo creates a new PostgreSQL sync run repository.
func NewSyncRunRepo(db *DB) *SyncRunRepo {
	return &SyncRunRepo{db: db}
}

type runRow struct {
	RunID      string         `db:"run_id"`
	ConfigID   sql.NullString `db:"config_id"`
	OwnerID    string         `db:"owner_id"`
	Phases     []byte         `db:"phases"`
	StartedAt  time.Time      `db:"started_at"`
	FinishedAt time.Time      `db:"finished_at"`
}

// SaveRun upserts a sync report.
func (r *SyncRunRepo) SaveRun(ctx context.Context, report domain.SyncReport) error {
	phases, err := json.Marshal(report.Phases)
	if err != nil {
		return fmt.Errorf("failed to marshal phases: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sync_runs (run_id, config_id, owner_id, phases, started_at, finished_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)
		ON CONFLICT (run_id) DO UPDATE
		SET phases = EXCLUDED.phases, finished_at = EXCLUDED.finished_at`,
		report.RunID, report.ConfigID, report.OwnerID, string(phases), report.StartedAt, report.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save sync run: %w", err)
	}
	return nil
}

// SaveRecords stores the per-entry outcome of a bulk phase in one transaction.
func (r *SyncRunRepo) SaveRecords(
	ctx context.Context,
	runID string,
	phase domain.SyncPhase,
	targets []domain.SyncTarget,
	records []domain.IdentityRecord,
) error {
	if len(targets) != len(records) {
		return fmt.Errorf("got %d records for %d targets", len(records), len(targets))
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO sync_records
			(run_id, phase, position, name, email, tags, role, identity_id, handle, is_fallback)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id, phase, position) DO UPDATE
		SET identity_id = EXCLUDED.identity_id, handle = EXCLUDED.handle, is_fallback = EXCLUDED.is_fallback`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		t := targets[i]
		tags := t.Tags
		if tags == nil {
			tags = []string{}
		}
		if _, err := stmt.ExecContext(ctx,
			runID, string(phase), i, t.Name, t.Email, pq.Array(tags), string(t.Role),
			rec.ID, rec.Handle, rec.IsFallback,
		); err != nil {
			return fmt.Errorf("failed to insert sync record %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sync records: %w", err)
	}
	return nil
}

// GetRun retrieves a sync report by run ID.
func (r *SyncRunRepo) GetRun(ctx context.Context, runID string) (*domain.SyncReport, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, `
		SELECT run_id, config_id, owner_id, phases, started_at, finished_at
		FROM sync_runs WHERE run_id = $1`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync run: %w", err)
	}

	report := &domain.SyncReport{
		RunID:      row.RunID,
		ConfigID:   row.ConfigID.String,
		OwnerID:    row.OwnerID,
		StartedAt:  row.StartedAt,
		FinishedAt: row.FinishedAt,
	}
	if err := json.Unmarshal(row.Phases, &report.Phases); err != nil {
		return nil, fmt.Errorf("failed to unmarshal phases: %w", err)
	}
	return report, nil
}
