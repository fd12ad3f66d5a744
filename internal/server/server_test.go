package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/eventsync/internal/core/apperr"
	"github.com/vietddude/eventsync/internal/core/domain"
	"github.com/vietddude/eventsync/internal/core/resilience"
	"github.com/vietddude/eventsync/internal/generation"
	"github.com/vietddude/eventsync/internal/infra/graph"
	"github.com/vietddude/eventsync/internal/infra/llm"
	"github.com/vietddude/eventsync/internal/infra/storage/memory"
	"github.com/vietddude/eventsync/internal/syncing/bulk"
	"github.com/vietddude/eventsync/internal/syncing/identity"
	"github.com/vietddude/eventsync/internal/syncing/protocol"
)

type fixture struct {
	handler http.Handler
	graph   *graph.MemoryGraph
}

func newFixture(t *testing.T, quota int) fixture {
	t.Helper()
	g := graph.NewMemoryGraph()
	store := memory.NewMemoryStorage()
	configs := memory.NewConfigRepo(store)
	runs := memory.NewSyncRunRepo(store)
	resolver := identity.NewResolver(g, memory.NewIdentityCache(store), nil, identity.DefaultConfig())
	ingester := bulk.NewIngester(resolver, bulk.Config{})
	pipeline := protocol.NewPipeline(ingester, g, runs, protocol.Config{})
	gen := generation.NewService(llm.NewStatic(),
		generation.WithGate(generation.NewGate(memory.NewRateLimitStore(store),
			generation.RateLimitConfig{Quota: quota, Window: time.Hour})),
		generation.WithSyncer(pipeline),
		generation.WithConfigRepository(configs),
		generation.WithDefaultPolicy(resilience.Policy{MaxRetries: 1, InitialDelay: time.Millisecond}),
	)
	srv := NewServer(Config{}, Deps{
		Generator: gen,
		Resolver:  resolver,
		Ingester:  ingester,
		Syncer:    pipeline,
		Configs:   configs,
		Runs:      runs,
		Monitor:   NewMonitor(Dependency{Name: "graph", Ping: g.Ping}),
	})
	return fixture{handler: srv.Handler(), graph: g}
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func generateBody() map[string]any {
	return map[string]any{
		"caller_id": "caller-1",
		"inputs": map[string]any{
			"event_basics":   "Quarterly Go community meetup in Hanoi",
			"duration_hours": 2,
			"attendees": []map[string]any{
				{"name": "Alice", "email": "alice@example.com"},
				{"name": "Rob", "email": "rob@example.com", "role": "speaker"},
			},
		},
	}
}

func TestGenerate_EndToEnd(t *testing.T) {
	f := newFixture(t, 10)

	rec := do(t, f.handler, http.MethodPost, "/v1/generate", generateBody())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res generation.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	require.NotNil(t, res.Config)
	require.NotNil(t, res.Sync)
	assert.Equal(t, 1, res.Attempts)
	require.Len(t, res.Config.Attendees, 1)
	assert.NotEmpty(t, res.Config.Attendees[0].IdentityID)

	rec = do(t, f.handler, http.MethodGet, "/v1/configs/"+res.Config.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, f.handler, http.MethodGet, "/v1/sync/"+res.Sync.RunID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGenerate_ValidationIs400(t *testing.T) {
	f := newFixture(t, 10)
	body := generateBody()
	body["inputs"].(map[string]any)["event_basics"] = "too short"

	rec := do(t, f.handler, http.MethodPost, "/v1/generate", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "validation", resp.Kind)
	searches, creates := f.graph.Calls()
	assert.Zero(t, searches+creates)
}

func TestGenerate_RateLimitIs429WithRetryAfter(t *testing.T) {
	f := newFixture(t, 1)

	require.Equal(t, http.StatusOK, do(t, f.handler, http.MethodPost, "/v1/generate", generateBody()).Code)
	rec := do(t, f.handler, http.MethodPost, "/v1/generate", generateBody())

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	secs, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Greater(t, secs, 3000)
}

func TestEnsureIdentity_FallbackIs200(t *testing.T) {
	f := newFixture(t, 10)
	f.graph.SetDown(true)

	rec := do(t, f.handler, http.MethodPost, "/v1/identities", map[string]any{"email": "x@example.com"})

	require.Equal(t, http.StatusOK, rec.Code)
	var out domain.IdentityRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.True(t, out.IsFallback)
}

func TestIngestBatch_PartialSuccess(t *testing.T) {
	f := newFixture(t, 10)
	f.graph.FailEmail("b@example.com")

	rec := do(t, f.handler, http.MethodPost, "/v1/batches", map[string]any{
		"owner_id": "owner",
		"targets": []map[string]any{
			{"name": "A", "email": "a@example.com"},
			{"name": "B", "email": "b@example.com"},
		},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var out domain.SyncBatchResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, 1, out.CreatedCount)
	assert.Equal(t, 1, out.FailedCount)
}

func TestSync_InlineConfig(t *testing.T) {
	f := newFixture(t, 10)

	rec := do(t, f.handler, http.MethodPost, "/v1/sync", map[string]any{
		"owner_id": "owner",
		"config": map[string]any{
			"title":    "Meetup",
			"sessions": []map[string]any{{"title": "Intro", "tag": "intro"}},
		},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var out syncResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	sessions, ok := out.Report.Phase(domain.PhaseSessions)
	require.True(t, ok)
	assert.Equal(t, 1, sessions.Created)
}

func TestSync_UnknownConfigIs404(t *testing.T) {
	f := newFixture(t, 10)
	rec := do(t, f.handler, http.MethodPost, "/v1/sync", map[string]any{"config_id": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDecode_RejectsBadBody(t *testing.T) {
	f := newFixture(t, 10)
	req := httptest.NewRequest(http.MethodPost, "/v1/identities", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth_GraphDownIsDegraded(t *testing.T) {
	f := newFixture(t, 10)
	f.graph.SetDown(true)

	rec := do(t, f.handler, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"degraded"}`, rec.Body.String())
}

func TestMonitor_CriticalDependency(t *testing.T) {
	m := NewMonitor(
		Dependency{Name: "database", Critical: true, Ping: func(context.Context) error { return errors.New("down") }},
		Dependency{Name: "redis", Ping: func(context.Context) error { return nil }},
	)

	report := m.CheckHealth(context.Background())

	assert.Equal(t, StatusCritical, report.SystemStatus)
	assert.Equal(t, StatusHealthy, report.Dependencies["redis"].Status)
	assert.Equal(t, "down", report.Dependencies["database"].Error)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(&apperr.ValidationError{}))
	assert.Equal(t, http.StatusTooManyRequests, StatusFor(&apperr.RateLimitError{}))
	assert.Equal(t, http.StatusGatewayTimeout, StatusFor(&apperr.TimeoutError{}))
	assert.Equal(t, http.StatusBadGateway, StatusFor(&apperr.ConnectionError{}))
	assert.Equal(t, http.StatusBadGateway, StatusFor(&apperr.GenerationError{}))
}
