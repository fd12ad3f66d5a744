// Package generation runs the resilient event-config generation flow.
//
// A request moves through these states:
//
//	Received -> Validated -> RateChecked -> Generating -> Generated -> SyncingDownstream -> Completed
//
// Validation and quota failures reject the request without retries.
// Generation failures are retried by the resilience executor; once retries
// are exhausted the classified error is returned. Downstream sync and
// persistence are best-effort and never fail a generated result.
package generation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vietddude/eventsync/internal/core/apperr"
	"github.com/vietddude/eventsync/internal/core/domain"
	"github.com/vietddude/eventsync/internal/core/resilience"
	"github.com/vietddude/eventsync/internal/infra/storage"
	"github.com/vietddude/eventsync/internal/metrics"
)

// ErrEmptyConfig is the cause when a capability returns no config and no error.
var ErrEmptyConfig = errors.New("capability returned no configuration")

// Capability produces an event configuration from natural-language inputs.
type Capability interface {
	Generate(ctx context.Context, inputs domain.GenerationInputs) (*domain.EventConfig, error)
}

// CapabilityFunc adapts a function to Capability.
type CapabilityFunc func(ctx context.Context, inputs domain.GenerationInputs) (*domain.EventConfig, error)

func (f CapabilityFunc) Generate(ctx context.Context, inputs domain.GenerationInputs) (*domain.EventConfig, error) {
	return f(ctx, inputs)
}

// Syncer propagates a generated config downstream.
type Syncer interface {
	SyncGeneratedConfig(ctx context.Context, ownerID string, cfg *domain.EventConfig) domain.SyncReport
}

// Request is one generation request.
type Request struct {
	CallerID string                  `json:"caller_id"`
	Inputs   domain.GenerationInputs `json:"inputs"`
}

// Result is a completed generation.
type Result struct {
	Config   *domain.EventConfig `json:"config"`
	Sync     *domain.SyncReport  `json:"sync,omitempty"`
	Attempts int                 `json:"attempts"`
}

// Service orchestrates generation requests.
type Service struct {
	capability Capability
	gate       *Gate
	syncer     Syncer
	configs    storage.ConfigRepository
	policy     resilience.Policy
	log        *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithGate enables quota checks.
func WithGate(g *Gate) Option {
	return func(s *Service) { s.gate = g }
}

// WithSyncer enables downstream protocol sync of generated configs.
func WithSyncer(syncer Syncer) Option {
	return func(s *Service) { s.syncer = syncer }
}

// WithConfigRepository enables persisting generated configs.
func WithConfigRepository(repo storage.ConfigRepository) Option {
	return func(s *Service) { s.configs = repo }
}

// WithDefaultPolicy sets the policy used when a request passes none.
func WithDefaultPolicy(p resilience.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// NewService creates a generation service.
func NewService(capability Capability, opts ...Option) *Service {
	s := &Service{
		capability: capability,
		policy:     resilience.DefaultPolicy(),
		log:        slog.Default().With("component", "generation"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.policy.Name == "" || s.policy.Name == "call" {
		s.policy.Name = "generation"
	}
	return s
}

// GenerateWithResilience validates req, checks the caller's quota, runs the
// capability under policy (the service default when nil) and syncs the
// result downstream. Returned errors are always classified apperr errors.
func (s *Service) GenerateWithResilience(ctx context.Context, req Request, policy *resilience.Policy) (*Result, error) {
	start := time.Now()

	if err := Validate(req); err != nil {
		s.reject(req, "validation", err)
		return nil, err
	}
	if err := s.gate.Check(ctx, req.CallerID); err != nil {
		s.reject(req, "rate_limited", err)
		return nil, err
	}

	p := s.policy
	if policy != nil {
		p = *policy
		if p.Name == "" {
			p.Name = s.policy.Name
		}
	}
	var attempts int
	cfg, err := resilience.Do(ctx, p, func(ctx context.Context) (*domain.EventConfig, error) {
		attempts++
		cfg, err := s.capability.Generate(ctx, req.Inputs)
		if err == nil && cfg == nil {
			err = &apperr.GenerationError{Cause: ErrEmptyConfig, Context: "empty configuration"}
		}
		return cfg, err
	})
	if err != nil {
		classified := apperr.Classify(err)
		s.log.Error("Generation failed",
			append(apperr.LogAttrs("generation.generate", req.Inputs.EventBasics, attempts),
				"caller_id", req.CallerID,
				"kind", apperr.KindOf(classified).String(),
				"error", err,
			)...)
		metrics.GenerationRequests.WithLabelValues("failed").Inc()
		metrics.GenerationLatency.WithLabelValues("failed").Observe(time.Since(start).Seconds())
		return nil, classified
	}

	if cfg.GeneratedAt.IsZero() {
		cfg.GeneratedAt = time.Now().UTC()
	}
	result := &Result{Config: cfg, Attempts: attempts}

	if s.configs != nil {
		id, err := s.configs.Save(ctx, req.CallerID, cfg)
		if err != nil {
			s.log.Warn("Failed to persist generated config",
				append(apperr.LogAttrs("generation.persist", cfg.Title, 1), "error", err)...)
		} else {
			cfg.ID = id
		}
	}

	if s.syncer != nil {
		report := s.syncer.SyncGeneratedConfig(ctx, req.CallerID, cfg)
		result.Sync = &report
		if s.configs != nil && cfg.ID != "" {
			// Save upserts by ID; this stores the merged identities.
			if _, err := s.configs.Save(ctx, req.CallerID, cfg); err != nil {
				s.log.Warn("Failed to persist synced config", "config_id", cfg.ID, "error", err)
			}
		}
	}

	metrics.GenerationRequests.WithLabelValues("completed").Inc()
	metrics.GenerationLatency.WithLabelValues("completed").Observe(time.Since(start).Seconds())
	s.log.Info("Generation completed",
		"caller_id", req.CallerID,
		"config_id", cfg.ID,
		"attempts", attempts,
		"duration", time.Since(start),
	)
	return result, nil
}

func (s *Service) reject(req Request, outcome string, err error) {
	metrics.GenerationRequests.WithLabelValues(outcome).Inc()
	s.log.Warn("Generation request rejected",
		append(apperr.LogAttrs("generation.admit", req.Inputs.EventBasics, 0),
			"caller_id", req.CallerID,
			"kind", apperr.KindOf(err).String(),
			"error", err,
		)...)
}
