package generation

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/eventsync/internal/core/apperr"
	"github.com/vietddude/eventsync/internal/core/domain"
	"github.com/vietddude/eventsync/internal/metrics"
)

// RateLimitStore is the external quota counter. CheckAndIncrement must be
// atomic at the store level.
type RateLimitStore interface {
	CheckAndIncrement(ctx context.Context, callerID string, quota int, window time.Duration) (domain.RateLimitDecision, error)
}

// RateLimitConfig holds the per-caller generation quota.
type RateLimitConfig struct {
	Quota  int           `yaml:"quota"`
	Window time.Duration `yaml:"window"`
}

// DefaultRateLimit allows 10 generations per caller per hour.
func DefaultRateLimit() RateLimitConfig {
	return RateLimitConfig{Quota: 10, Window: time.Hour}
}

// Gate enforces a caller-scoped rolling-window quota.
type Gate struct {
	store RateLimitStore
	cfg   RateLimitConfig
	log   *slog.Logger
}

// NewGate creates a gate. A nil store disables limiting.
func NewGate(store RateLimitStore, cfg RateLimitConfig) *Gate {
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	return &Gate{
		store: store,
		cfg:   cfg,
		log:   slog.Default().With("component", "ratelimit"),
	}
}

// Check consumes one unit of callerID's quota. It returns an
// *apperr.RateLimitError when the quota is exhausted. An unreachable store
// lets the call through.
func (g *Gate) Check(ctx context.Context, callerID string) error {
	if g == nil || g.store == nil || g.cfg.Quota <= 0 {
		return nil
	}

	decision, err := g.store.CheckAndIncrement(ctx, callerID, g.cfg.Quota, g.cfg.Window)
	if err != nil {
		g.log.Warn("Rate limit store unavailable, allowing request",
			"op", "ratelimit.check",
			"caller_id", callerID,
			"error", err,
		)
		return nil
	}
	if decision.Allowed {
		return nil
	}

	metrics.RateLimitRejections.Inc()
	g.log.Info("Rate limit exceeded",
		"op", "ratelimit.check",
		"caller_id", callerID,
		"reset_at", decision.ResetAt,
	)
	return &apperr.RateLimitError{ResetAt: decision.ResetAt}
}
