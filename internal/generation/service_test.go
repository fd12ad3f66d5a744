package generation

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/eventsync/internal/core/apperr"
	"github.com/vietddude/eventsync/internal/core/domain"
	"github.com/vietddude/eventsync/internal/core/resilience"
	"github.com/vietddude/eventsync/internal/infra/graph"
	"github.com/vietddude/eventsync/internal/infra/storage/memory"
	"github.com/vietddude/eventsync/internal/syncing/bulk"
	"github.com/vietddude/eventsync/internal/syncing/identity"
	"github.com/vietddude/eventsync/internal/syncing/protocol"
)

const basics = "A two-day Go conference for backend engineers in Hanoi"

func fastPolicy(onRetry func(int, error)) *resilience.Policy {
	return &resilience.Policy{
		Name:         "test",
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   3,
		OnRetry:      onRetry,
	}
}

type countingLimiter struct {
	calls    int32
	decision domain.RateLimitDecision
	err      error
}

func (l *countingLimiter) CheckAndIncrement(ctx context.Context, callerID string, quota int, window time.Duration) (domain.RateLimitDecision, error) {
	atomic.AddInt32(&l.calls, 1)
	return l.decision, l.err
}

type countingCapability struct {
	calls int32
	fn    func(call int32) (*domain.EventConfig, error)
}

func (c *countingCapability) Generate(ctx context.Context, inputs domain.GenerationInputs) (*domain.EventConfig, error) {
	n := atomic.AddInt32(&c.calls, 1)
	return c.fn(n)
}

func okConfig() *domain.EventConfig {
	return &domain.EventConfig{
		Title:     "GopherCon Hanoi",
		Attendees: []domain.Participant{{SyncTarget: domain.SyncTarget{Name: "Alice", Email: "alice@example.com"}}},
		Sessions:  []domain.Session{{Title: "Keynote", Tag: "keynote"}},
	}
}

func TestGenerate_RetriesConnectionFailures(t *testing.T) {
	capability := &countingCapability{fn: func(n int32) (*domain.EventConfig, error) {
		if n < 3 {
			return nil, &apperr.ConnectionError{Endpoint: "llm", StatusCode: 503}
		}
		return okConfig(), nil
	}}
	var retries []int
	svc := NewService(capability)

	res, err := svc.GenerateWithResilience(context.Background(),
		Request{CallerID: "caller", Inputs: domain.GenerationInputs{EventBasics: basics}},
		fastPolicy(func(attempt int, err error) { retries = append(retries, attempt) }))

	require.NoError(t, err)
	assert.Equal(t, "GopherCon Hanoi", res.Config.Title)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestGenerate_ShortInputMakesNoCalls(t *testing.T) {
	g := graph.NewMemoryGraph()
	limiter := &countingLimiter{decision: domain.RateLimitDecision{Allowed: true}}
	capability := &countingCapability{fn: func(int32) (*domain.EventConfig, error) { return okConfig(), nil }}
	resolver := identity.NewResolver(g, nil, nil, identity.DefaultConfig())
	pipeline := protocol.NewPipeline(bulk.NewIngester(resolver, bulk.Config{}), g, nil, protocol.Config{})
	svc := NewService(capability,
		WithGate(NewGate(limiter, DefaultRateLimit())),
		WithSyncer(pipeline),
	)

	_, err := svc.GenerateWithResilience(context.Background(),
		Request{CallerID: "caller", Inputs: domain.GenerationInputs{EventBasics: "party"}},
		fastPolicy(nil))

	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "event_basics", verr.Field)
	assert.Zero(t, atomic.LoadInt32(&limiter.calls))
	assert.Zero(t, atomic.LoadInt32(&capability.calls))
	searches, creates := g.Calls()
	assert.Zero(t, searches+creates)
}

func TestGenerate_RateLimitedNeverInvokesCapability(t *testing.T) {
	resetAt := time.Now().Add(30 * time.Minute)
	limiter := &countingLimiter{decision: domain.RateLimitDecision{Allowed: false, ResetAt: resetAt}}
	capability := &countingCapability{fn: func(int32) (*domain.EventConfig, error) { return okConfig(), nil }}
	var retried bool
	svc := NewService(capability, WithGate(NewGate(limiter, DefaultRateLimit())))

	_, err := svc.GenerateWithResilience(context.Background(),
		Request{CallerID: "caller", Inputs: domain.GenerationInputs{EventBasics: basics}},
		fastPolicy(func(int, error) { retried = true }))

	var rerr *apperr.RateLimitError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, resetAt, rerr.ResetAt)
	assert.Zero(t, atomic.LoadInt32(&capability.calls))
	assert.False(t, retried)
}

func TestGenerate_RateLimitStoreDownFailsOpen(t *testing.T) {
	limiter := &countingLimiter{err: errors.New("redis: connection refused")}
	capability := &countingCapability{fn: func(int32) (*domain.EventConfig, error) { return okConfig(), nil }}
	svc := NewService(capability, WithGate(NewGate(limiter, DefaultRateLimit())))

	_, err := svc.GenerateWithResilience(context.Background(),
		Request{CallerID: "caller", Inputs: domain.GenerationInputs{EventBasics: basics}}, fastPolicy(nil))

	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&capability.calls))
}

func TestGenerate_ExhaustedRetriesAreClassified(t *testing.T) {
	capability := &countingCapability{fn: func(int32) (*domain.EventConfig, error) {
		return nil, errors.New("dial tcp 10.0.0.1:443: connect: connection refused")
	}}
	svc := NewService(capability)

	_, err := svc.GenerateWithResilience(context.Background(),
		Request{CallerID: "caller", Inputs: domain.GenerationInputs{EventBasics: basics}}, fastPolicy(nil))

	require.Error(t, err)
	assert.Equal(t, apperr.KindConnection, apperr.KindOf(err))
	assert.Equal(t, int32(4), atomic.LoadInt32(&capability.calls))
	assert.NotContains(t, apperr.UserMessage(err), "10.0.0.1")
}

func TestGenerate_AttemptTimeout(t *testing.T) {
	capability := CapabilityFunc(func(ctx context.Context, _ domain.GenerationInputs) (*domain.EventConfig, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	p := fastPolicy(nil)
	p.MaxRetries = 1
	p.AttemptTimeout = 20 * time.Millisecond
	svc := NewService(capability)

	start := time.Now()
	_, err := svc.GenerateWithResilience(context.Background(),
		Request{CallerID: "caller", Inputs: domain.GenerationInputs{EventBasics: basics}}, p)

	var terr *apperr.TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGenerate_NilConfigIsGenerationError(t *testing.T) {
	capability := &countingCapability{fn: func(int32) (*domain.EventConfig, error) { return nil, nil }}
	p := fastPolicy(nil)
	p.MaxRetries = 0
	svc := NewService(capability)

	_, err := svc.GenerateWithResilience(context.Background(),
		Request{CallerID: "caller", Inputs: domain.GenerationInputs{EventBasics: basics}}, p)

	assert.Equal(t, apperr.KindGeneration, apperr.KindOf(err))
	assert.ErrorIs(t, err, ErrEmptyConfig)
	assert.NotContains(t, err.Error(), "<nil>")
}

func TestGenerate_SyncsAndPersists(t *testing.T) {
	g := graph.NewMemoryGraph()
	g.SetDown(true)
	store := memory.NewMemoryStorage()
	configs := memory.NewConfigRepo(store)
	resolver := identity.NewResolver(g, nil, nil, identity.DefaultConfig())
	pipeline := protocol.NewPipeline(bulk.NewIngester(resolver, bulk.Config{}), g, memory.NewSyncRunRepo(store), protocol.Config{})
	capability := &countingCapability{fn: func(int32) (*domain.EventConfig, error) { return okConfig(), nil }}
	svc := NewService(capability, WithSyncer(pipeline), WithConfigRepository(configs))

	res, err := svc.GenerateWithResilience(context.Background(),
		Request{CallerID: "caller", Inputs: domain.GenerationInputs{EventBasics: basics}}, fastPolicy(nil))

	// A downstream outage never fails a generated result.
	require.NoError(t, err)
	require.NotNil(t, res.Sync)
	assert.Equal(t, res.Config.ID, res.Sync.ConfigID)
	attendees, _ := res.Sync.Phase(domain.PhaseAttendees)
	assert.Equal(t, 1, attendees.Failed)

	stored, err := configs.Get(context.Background(), res.Config.ID)
	require.NoError(t, err)
	assert.True(t, stored.Attendees[0].IsFallback)
	assert.True(t, strings.HasPrefix(stored.Attendees[0].IdentityID, "fallback-"))
	assert.False(t, stored.GeneratedAt.IsZero())
}

func TestValidate(t *testing.T) {
	valid := Request{CallerID: "c", Inputs: domain.GenerationInputs{EventBasics: basics}}
	require.NoError(t, Validate(valid))

	cases := map[string]struct {
		mutate func(*Request)
		field  string
	}{
		"missing caller": {func(r *Request) { r.CallerID = " " }, "caller_id"},
		"padded short basics": {func(r *Request) {
			r.Inputs.EventBasics = "   tiny meetup      "
		}, "event_basics"},
		"huge basics":       {func(r *Request) { r.Inputs.EventBasics = strings.Repeat("x", MaxEventBasicsLength+1) }, "event_basics"},
		"negative duration": {func(r *Request) { r.Inputs.DurationHours = -1 }, "duration_hours"},
		"long goals":        {func(r *Request) { r.Inputs.Goals = strings.Repeat("g", MaxFieldLength+1) }, "goals"},
		"bad email": {func(r *Request) {
			r.Inputs.Attendees = []domain.SyncTarget{{Name: "x", Email: "not-an-email"}}
		}, "attendee email"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)
			var verr *apperr.ValidationError
			require.ErrorAs(t, Validate(req), &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}
