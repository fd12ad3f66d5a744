package identity

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/eventsync/internal/core/apperr"
	"github.com/vietddude/eventsync/internal/core/domain"
	"github.com/vietddude/eventsync/internal/infra/graph"
	"github.com/vietddude/eventsync/internal/metrics"
)

// ErrDrainTimeout is returned by Enricher.Wait when tasks are still running.
var ErrDrainTimeout = errors.New("enrichment tasks still running")

var freeMailDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
	"yahoo.com":      true,
	"outlook.com":    true,
	"hotmail.com":    true,
	"icloud.com":     true,
	"proton.me":      true,
	"protonmail.com": true,
}

// Enricher runs warm-start enrichment for newly created identities in the
// background. Results are only logged.
type Enricher struct {
	graph     graph.Graph
	welcomeID string
	timeout   time.Duration
	wg        sync.WaitGroup
	log       *slog.Logger
}

// NewEnricher creates an enricher. welcomeID is the system identity every
// new identity is seeded to follow; empty disables the relationship step.
func NewEnricher(g graph.Graph, welcomeID string, timeout time.Duration) *Enricher {
	if timeout == 0 {
		timeout = DefaultConfig().EnrichTimeout
	}
	return &Enricher{
		graph:     g,
		welcomeID: welcomeID,
		timeout:   timeout,
		log:       slog.Default().With("component", "enrichment"),
	}
}

// Spawn starts enrichment for identity and returns immediately. The task is
// detached from ctx cancellation but bounded by the enrichment timeout.
func (e *Enricher) Spawn(ctx context.Context, identity domain.Identity, h Hints) {
	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		defer func() {
			if p := recover(); p != nil {
				e.log.Error("Enrichment panicked", "identity", identity.ID, "panic", p)
			}
		}()
		e.run(taskCtx, identity, h)
	}()
}

func (e *Enricher) run(ctx context.Context, identity domain.Identity, h Hints) {
	if tags := InterestTags(h); len(tags) > 0 {
		if err := e.graph.AssignTags(ctx, identity.ID, tags); err != nil {
			metrics.EnrichmentFailures.WithLabelValues("tags").Inc()
			e.log.Warn("Failed to assign interest tags",
				append(apperr.LogAttrs("enrich.tags", identity.ID, 1), "error", err)...)
		}
	}

	if e.welcomeID == "" || e.welcomeID == identity.ID {
		return
	}
	if err := e.graph.Follow(ctx, identity.ID, e.welcomeID); err != nil {
		metrics.EnrichmentFailures.WithLabelValues("follow").Inc()
		e.log.Warn("Failed to seed welcome relationship",
			append(apperr.LogAttrs("enrich.follow", identity.ID, 1), "error", err)...)
	}
}

// Wait blocks until all spawned tasks finish or ctx is done.
func (e *Enricher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ErrDrainTimeout
	}
}

// InterestTags derives heuristic interest tags from profile hints: the
// normalized provided tags, the role and the organization email domain.
func InterestTags(h Hints) []string {
	set := make(map[string]bool)
	for _, t := range h.Tags {
		if n := normalizeTag(t); n != "" {
			set[n] = true
		}
	}
	if h.Role != "" {
		set["role:"+string(h.Role)] = true
	}
	if at := strings.LastIndexByte(h.Email, '@'); at > 0 && at < len(h.Email)-1 {
		domainPart := strings.ToLower(h.Email[at+1:])
		if !freeMailDomains[domainPart] {
			set["org:"+domainPart] = true
		}
	}

	tags := make([]string, 0, len(set))
	for t := range set {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

func normalizeTag(t string) string {
	return strings.Join(strings.Fields(strings.ToLower(t)), "-")
}
