package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/eventsync/internal/core/domain"
	"github.com/vietddude/eventsync/internal/infra/storage"
)

func TestRateLimitStore_RollingWindow(t *testing.T) {
	store := NewMemoryStorage()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })
	limiter := NewRateLimitStore(store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := limiter.CheckAndIncrement(ctx, "caller", 3, time.Hour)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "call %d", i)
		now = now.Add(10 * time.Minute)
	}

	d, err := limiter.CheckAndIncrement(ctx, "caller", 3, time.Hour)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC), d.ResetAt)

	// Another caller has its own window.
	d, err = limiter.CheckAndIncrement(ctx, "other", 3, time.Hour)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// The oldest hit leaves the window.
	now = time.Date(2026, 1, 1, 13, 0, 1, 0, time.UTC)
	d, err = limiter.CheckAndIncrement(ctx, "caller", 3, time.Hour)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestIdentityCache_FirstWriteWins(t *testing.T) {
	store := NewMemoryStorage()
	now := time.Now()
	store.SetClock(func() time.Time { return now })
	cache := NewIdentityCache(store)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "s:email:a@x.io", domain.IdentityRecord{ID: "first"}, time.Minute))
	require.NoError(t, cache.Put(ctx, "s:email:a@x.io", domain.IdentityRecord{ID: "late"}, time.Minute))

	rec, err := cache.Get(ctx, "s:email:a@x.io")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "first", rec.ID)

	now = now.Add(2 * time.Minute)
	rec, err = cache.Get(ctx, "s:email:a@x.io")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestConfigRepo_SaveAndList(t *testing.T) {
	repo := NewConfigRepo(NewMemoryStorage())
	ctx := context.Background()

	older := &domain.EventConfig{Title: "older", GeneratedAt: time.Now().Add(-time.Hour)}
	newer := &domain.EventConfig{Title: "newer", GeneratedAt: time.Now()}
	_, err := repo.Save(ctx, "owner", older)
	require.NoError(t, err)
	id, err := repo.Save(ctx, "owner", newer)
	require.NoError(t, err)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "newer", got.Title)

	list, err := repo.ListByOwner(ctx, "owner", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "newer", list[0].Title)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
