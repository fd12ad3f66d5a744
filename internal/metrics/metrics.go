package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CallAttempts tracks attempts made by resilient calls
	CallAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_call_attempts_total",
			Help: "Total number of resilient call attempts",
		},
		[]string{"op"},
	)

	// CallRetries tracks retries scheduled after a failed attempt
	CallRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_call_retries_total",
			Help: "Total number of retries scheduled",
		},
		[]string{"op", "kind"},
	)

	// CallTimeouts tracks attempts abandoned by the timeout guard
	CallTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_call_timeouts_total",
			Help: "Total number of attempts that exceeded their budget",
		},
		[]string{"op"},
	)

	// GenerationLatency tracks end-to-end generation latency
	GenerationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventsync_generation_latency_seconds",
			Help:    "Generation latency in seconds, including retries",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"outcome"},
	)

	// GenerationRequests tracks generation requests by terminal state
	GenerationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_generation_requests_total",
			Help: "Total number of generation requests by outcome",
		},
		[]string{"outcome"},
	)

	// IdentityResolutions tracks identity resolutions by source
	IdentityResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_identity_resolutions_total",
			Help: "Total number of identity resolutions",
		},
		[]string{"source"}, // cache, search, create, fallback
	)

	// EnrichmentFailures tracks failed warm-start enrichment tasks
	EnrichmentFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_enrichment_failures_total",
			Help: "Total number of failed warm-start enrichment steps",
		},
		[]string{"step"},
	)

	// SyncPhaseResults tracks protocol sync phase outcomes
	SyncPhaseResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_sync_phase_results_total",
			Help: "Total number of protocol sync phases by outcome",
		},
		[]string{"phase", "outcome"},
	)

	// RateLimitRejections tracks requests rejected by the quota gate
	RateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventsync_rate_limit_rejections_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)

	// DBConnectionPoolUsage tracks the usage percentage of the DB connection pool
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventsync_db_connection_pool_usage_percent",
			Help: "Percentage of open DB connections in use",
		},
	)
)
