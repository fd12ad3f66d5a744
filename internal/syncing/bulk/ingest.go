// Package bulk resolves identities for collections of sync targets.
package bulk

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/eventsync/internal/core/domain"
	"github.com/vietddude/eventsync/internal/syncing/identity"
)

// DefaultConcurrency bounds in-flight resolutions per batch.
const DefaultConcurrency = 16

// Resolver resolves a single identity. *identity.Resolver implements it.
type Resolver interface {
	EnsureIdentity(ctx context.Context, h identity.Hints) domain.IdentityRecord
}

// Config holds bulk ingestion settings.
type Config struct {
	Concurrency int `yaml:"concurrency"`
}

// Ingester fans identity resolution out over a batch and aggregates the
// outcome. Partial failure is reported through counts, never as an error.
type Ingester struct {
	resolver    Resolver
	concurrency int
	log         *slog.Logger
}

// NewIngester creates a new bulk ingester.
func NewIngester(resolver Resolver, cfg Config) *Ingester {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Ingester{
		resolver:    resolver,
		concurrency: cfg.Concurrency,
		log:         slog.Default().With("component", "bulk"),
	}
}

// Request describes one batch.
type Request struct {
	OwnerID   string
	SessionID string
	// Tags are added to every target's own tags.
	Tags    []string
	Targets []domain.SyncTarget
}

// IngestBatch resolves every target concurrently. Records[i] belongs to
// Targets[i]; execution order is unspecified.
func (i *Ingester) IngestBatch(ctx context.Context, req Request) domain.SyncBatchResult {
	records := make([]domain.IdentityRecord, len(req.Targets))

	var g errgroup.Group
	g.SetLimit(i.concurrency)
	for idx, target := range req.Targets {
		g.Go(func() error {
			records[idx] = i.resolver.EnsureIdentity(ctx, hintsFor(req, target))
			return nil
		})
	}
	_ = g.Wait()

	result := domain.SyncBatchResult{Records: records}
	for _, rec := range records {
		if rec.IsFallback {
			result.FailedCount++
		} else {
			result.CreatedCount++
		}
	}

	if result.FailedCount > 0 {
		i.log.Warn("Batch completed with partial failure",
			"op", "bulk.ingest",
			"size", len(records),
			"created", result.CreatedCount,
			"failed", result.FailedCount,
		)
	} else {
		i.log.Debug("Batch completed", "size", len(records))
	}
	return result
}

func hintsFor(req Request, target domain.SyncTarget) identity.Hints {
	tags := make([]string, 0, len(target.Tags)+len(req.Tags))
	tags = append(tags, target.Tags...)
	tags = append(tags, req.Tags...)
	return identity.Hints{
		Email:       target.Email,
		DisplayName: target.Name,
		OwnerID:     req.OwnerID,
		SessionID:   req.SessionID,
		Tags:        tags,
		Role:        target.Role,
	}
}
