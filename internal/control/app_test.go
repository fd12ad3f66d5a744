package control

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/eventsync/internal/core/config"
	"github.com/vietddude/eventsync/internal/core/domain"
	"github.com/vietddude/eventsync/internal/generation"
)

func TestApp_MemoryLifecycle(t *testing.T) {
	ctx := context.Background()
	app, err := New(ctx, config.Default())
	require.NoError(t, err)

	res, err := app.Generation.GenerateWithResilience(ctx, generation.Request{
		CallerID: "owner-1",
		Inputs: domain.GenerationInputs{
			EventBasics:   "Hanoi Gophers meetup. Talks and networking.",
			DurationHours: 2,
			Attendees: []domain.SyncTarget{
				{Name: "Alice", Email: "alice@example.com"},
				{Name: "Rob", Email: "rob@example.com", Role: domain.RoleSpeaker},
			},
		},
	}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.Config.ID)
	require.NotNil(t, res.Sync)

	stored, err := app.Configs.Get(ctx, res.Config.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Config.Title, stored.Title)

	run, err := app.Runs.GetRun(ctx, res.Sync.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.Config.ID, run.ConfigID)

	rec := httptest.NewRecorder()
	app.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	assert.NoError(t, app.Stop(stopCtx))
}

func TestApp_UnknownProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Generation.Provider = "palm"

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
