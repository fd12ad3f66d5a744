package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/eventsync/internal/core/domain"
	"github.com/vietddude/eventsync/internal/infra/storage"
)

// ConfigRepo implements storage.ConfigRepository using PostgreSQL.
type ConfigRepo struct {
	db *DB
}

// NewConfigRepo creates a new PostgreSQL config repository.
func NewConfigRepo(db *DB) *ConfigRepo {
	return &ConfigRepo{db: db}
}

type configRow struct {
	ID          string    `db:"id"`
	OwnerID     string    `db:"owner_id"`
	Payload     []byte    `db:"payload"`
	GeneratedAt time.Time `db:"generated_at"`
}

// Save upserts cfg, assigning an ID when it has none.
func (r *ConfigRepo) Save(ctx context.Context, ownerID string, cfg *domain.EventConfig) (string, error) {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.GeneratedAt.IsZero() {
		cfg.GeneratedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO event_configs (id, owner_id, title, payload, generated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title, payload = EXCLUDED.payload, updated_at = NOW()`,
		cfg.ID, ownerID, cfg.Title, string(payload), cfg.GeneratedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to save config: %w", err)
	}
	return cfg.ID, nil
}

// Get retrieves a configuration by ID.
func (r *ConfigRepo) Get(ctx context.Context, id string) (*domain.EventConfig, error) {
	var row configRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, owner_id, payload, generated_at FROM event_configs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}
	return row.decode()
}

// ListByOwner returns an owner's configurations, newest first.
func (r *ConfigRepo) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*domain.EventConfig, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []configRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, owner_id, payload, generated_at FROM event_configs
		WHERE owner_id = $1
		ORDER BY generated_at DESC
		LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list configs: %w", err)
	}

	configs := make([]*domain.EventConfig, 0, len(rows))
	for _, row := range rows {
		cfg, err := row.decode()
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

func (row configRow) decode() (*domain.EventConfig, error) {
	var cfg domain.EventConfig
	if err := json.Unmarshal(row.Payload, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config %s: %w", row.ID, err)
	}
	cfg.ID = row.ID
	return &cfg, nil
}
