// Package protocol propagates a generated event config to the identity graph.
//
// A sync runs three phases in order: attendees, speakers and sessions. Each
// phase is isolated; a failing or panicking phase is recorded in the report
// and the next phase still runs.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/eventsync/internal/core/apperr"
	"github.com/vietddude/eventsync/internal/core/domain"
	"github.com/vietddude/eventsync/internal/core/resilience"
	"github.com/vietddude/eventsync/internal/infra/graph"
	"github.com/vietddude/eventsync/internal/infra/storage"
	"github.com/vietddude/eventsync/internal/metrics"
	"github.com/vietddude/eventsync/internal/syncing/bulk"
)

// SpeakerTag is attached to every speaker identity.
const SpeakerTag = "speaker"

// Config holds protocol sync settings.
type Config struct {
	TagTimeout time.Duration `yaml:"tag_timeout"`
}

// Pipeline runs protocol sync.
type Pipeline struct {
	ingester *bulk.Ingester
	graph    graph.Graph
	runs     storage.SyncRunRepository
	cfg      Config
	log      *slog.Logger
}

// NewPipeline creates a pipeline. runs may be nil to skip persisting reports.
func NewPipeline(ingester *bulk.Ingester, g graph.Graph, runs storage.SyncRunRepository, cfg Config) *Pipeline {
	if cfg.TagTimeout <= 0 {
		cfg.TagTimeout = 5 * time.Second
	}
	return &Pipeline{
		ingester: ingester,
		graph:    g,
		runs:     runs,
		cfg:      cfg,
		log:      slog.Default().With("component", "protocol"),
	}
}

// SyncGeneratedConfig synchronizes cfg's attendees, speakers and sessions.
// Resolved identities are written back into cfg. It never returns an error;
// per-phase outcomes are in the report.
func (p *Pipeline) SyncGeneratedConfig(ctx context.Context, ownerID string, cfg *domain.EventConfig) domain.SyncReport {
	report := domain.SyncReport{
		RunID:     uuid.NewString(),
		OwnerID:   ownerID,
		StartedAt: time.Now().UTC(),
	}
	if cfg == nil {
		report.FinishedAt = report.StartedAt
		return report
	}
	report.ConfigID = cfg.ID
	log := p.log.With("run_id", report.RunID)

	report.Phases = append(report.Phases,
		p.runPhase(log, domain.PhaseAttendees, func() (domain.PhaseReport, error) {
			return p.syncParticipants(ctx, report.RunID, ownerID, domain.PhaseAttendees, cfg.Attendees, nil, "")
		}),
		p.runPhase(log, domain.PhaseSpeakers, func() (domain.PhaseReport, error) {
			return p.syncParticipants(ctx, report.RunID, ownerID, domain.PhaseSpeakers, cfg.Speakers,
				[]string{SpeakerTag}, domain.RoleSpeaker)
		}),
		p.runPhase(log, domain.PhaseSessions, func() (domain.PhaseReport, error) {
			return p.syncSessions(ctx, cfg.Sessions)
		}),
	)
	report.FinishedAt = time.Now().UTC()

	p.saveRun(ctx, log, report)
	log.Info("Protocol sync finished",
		"owner_id", ownerID,
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)
	return report
}

// saveRun persists the report. Failures and panics are logged only.
func (p *Pipeline) saveRun(ctx context.Context, log *slog.Logger, report domain.SyncReport) {
	if p.runs == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("Sync report persistence panicked", "panic", r)
		}
	}()
	if err := p.runs.SaveRun(ctx, report); err != nil {
		log.Warn("Failed to persist sync report", "error", err)
	}
}

// runPhase executes fn, converting an error or panic into a failed phase report.
func (p *Pipeline) runPhase(
	log *slog.Logger,
	phase domain.SyncPhase,
	fn func() (domain.PhaseReport, error),
) (rep domain.PhaseReport) {
	defer func() {
		if r := recover(); r != nil {
			rep = domain.PhaseReport{Phase: phase, Error: fmt.Sprintf("phase panicked: %v", r)}
		}
		outcome := "ok"
		switch {
		case rep.Error != "":
			outcome = "error"
			log.Error("Sync phase failed", "phase", phase, "error", rep.Error)
		case rep.Failed > 0:
			outcome = "partial"
			log.Warn("Sync phase partially failed", "phase", phase, "created", rep.Created, "failed", rep.Failed)
		default:
			log.Debug("Sync phase completed", "phase", phase, "created", rep.Created)
		}
		metrics.SyncPhaseResults.WithLabelValues(string(phase), outcome).Inc()
	}()

	rep, err := fn()
	rep.Phase = phase
	if err != nil {
		rep.Error = err.Error()
	}
	return rep
}

func (p *Pipeline) syncParticipants(
	ctx context.Context,
	runID, ownerID string,
	phase domain.SyncPhase,
	participants []domain.Participant,
	tags []string,
	role domain.Role,
) (domain.PhaseReport, error) {
	if len(participants) == 0 {
		return domain.PhaseReport{}, nil
	}

	targets := make([]domain.SyncTarget, len(participants))
	for i, part := range participants {
		targets[i] = part.SyncTarget
		if role != "" {
			targets[i].Role = role
		}
	}

	result := p.ingester.IngestBatch(ctx, bulk.Request{
		OwnerID: ownerID,
		Tags:    tags,
		Targets: targets,
	})
	if len(result.Records) != len(participants) {
		return domain.PhaseReport{}, fmt.Errorf("bulk returned %d records for %d targets",
			len(result.Records), len(participants))
	}

	for i, rec := range result.Records {
		participants[i].IdentityID = rec.ID
		participants[i].Handle = rec.Handle
		participants[i].IsFallback = rec.IsFallback
		if role != "" {
			participants[i].Role = role
		}
	}

	if p.runs != nil {
		if err := p.runs.SaveRecords(ctx, runID, phase, targets, result.Records); err != nil {
			p.log.Warn("Failed to persist sync records", "run_id", runID, "phase", phase, "error", err)
		}
	}
	return domain.PhaseReport{Created: result.CreatedCount, Failed: result.FailedCount}, nil
}

func (p *Pipeline) syncSessions(ctx context.Context, sessions []domain.Session) (domain.PhaseReport, error) {
	var rep domain.PhaseReport
	seen := make(map[string]bool, len(sessions))
	for _, session := range sessions {
		label := session.TagLabel()
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true

		_, err := resilience.WithTimeout(ctx, p.cfg.TagTimeout,
			func(ctx context.Context) (*domain.ContextTag, error) {
				return p.graph.CreateContextTag(ctx, label)
			})
		switch {
		case err == nil, errors.Is(err, graph.ErrConflict):
			rep.Created++
		default:
			rep.Failed++
			p.log.Warn("Failed to create context tag",
				append(apperr.LogAttrs("protocol.context_tag", label, 1),
					"kind", apperr.KindOf(err).String(), "error", err)...)
		}
	}
	return rep, nil
}
