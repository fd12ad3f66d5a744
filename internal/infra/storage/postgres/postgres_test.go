package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/eventsync/internal/core/domain"
	"github.com/vietddude/eventsync/internal/infra/storage"
)

func setupTestDB(t *testing.T) *DB {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("Skipping postgres test. Set DATABASE_URL to run.")
	}
	ctx := context.Background()
	db, err := NewDB(ctx, Config{URL: url})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))
	return db
}

func TestConfigRepo_Upsert(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConfigRepo(db)
	ctx := context.Background()
	owner := "owner-" + uuid.NewString()

	cfg := &domain.EventConfig{
		Title:       "Gopher Day",
		GeneratedAt: time.Now().UTC().Truncate(time.Millisecond),
		Attendees:   []domain.Participant{{SyncTarget: domain.SyncTarget{Name: "Alice"}}},
	}
	id, err := repo.Save(ctx, owner, cfg)
	require.NoError(t, err)
	require.Equal(t, cfg.ID, id)

	cfg.Attendees[0].IdentityID = "identity-1"
	_, err = repo.Save(ctx, owner, cfg)
	require.NoError(t, err)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "identity-1", got.Attendees[0].IdentityID)

	list, err := repo.ListByOwner(ctx, owner, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = repo.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSyncRunRepo_SaveAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSyncRunRepo(db)
	ctx := context.Background()

	report := domain.SyncReport{
		RunID:   uuid.NewString(),
		OwnerID: "owner",
		Phases: []domain.PhaseReport{
			{Phase: domain.PhaseAttendees, Created: 3, Failed: 2},
			{Phase: domain.PhaseSessions, Error: "phase panicked: boom"},
		},
		StartedAt:  time.Now().UTC().Truncate(time.Millisecond),
		FinishedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	err := repo.SaveRecords(ctx, report.RunID, domain.PhaseAttendees,
		[]domain.SyncTarget{{Name: "Alice", Tags: []string{"go"}}, {Name: "Bob"}},
		[]domain.IdentityRecord{{ID: "a"}, {ID: "fallback-b", IsFallback: true}},
	)
	require.NoError(t, err)
	require.NoError(t, repo.SaveRun(ctx, report))

	got, err := repo.GetRun(ctx, report.RunID)
	require.NoError(t, err)
	assert.Equal(t, report.Phases, got.Phases)
	assert.Empty(t, got.ConfigID)

	err = repo.SaveRecords(ctx, report.RunID, domain.PhaseSpeakers,
		[]domain.SyncTarget{{Name: "x"}}, nil)
	assert.Error(t, err)
}
