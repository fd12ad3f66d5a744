package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/eventsync/internal/core/config"
	"github.com/vietddude/eventsync/internal/generation"
	"github.com/vietddude/eventsync/internal/infra/graph"
	"github.com/vietddude/eventsync/internal/infra/llm"
	redisclient "github.com/vietddude/eventsync/internal/infra/redis"
	"github.com/vietddude/eventsync/internal/infra/storage"
	"github.com/vietddude/eventsync/internal/infra/storage/memory"
	"github.com/vietddude/eventsync/internal/infra/storage/postgres"
	"github.com/vietddude/eventsync/internal/server"
	"github.com/vietddude/eventsync/internal/syncing/bulk"
	"github.com/vietddude/eventsync/internal/syncing/identity"
	"github.com/vietddude/eventsync/internal/syncing/protocol"
)

// App is the main application struct that wires and manages the service lifecycle.
type App struct {
	cfg         *config.AppConfig
	Generation  *generation.Service
	Resolver    *identity.Resolver
	Ingester    *bulk.Ingester
	Pipeline    *protocol.Pipeline
	Configs     storage.ConfigRepository
	Runs        storage.SyncRunRepository
	enricher    *identity.Enricher
	server      *server.Server
	db          *postgres.DB
	redisClient *redisclient.Client
	stopMetrics context.CancelFunc
	log         *slog.Logger
}

// New creates a new App with all dependencies initialized. Without a
// database URL, Redis URL or graph URL the corresponding in-memory
// implementation is used.
func New(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	app := &App{cfg: cfg, log: slog.Default().With("component", "app")}
	var deps []server.Dependency

	// 1. Initialize Storage
	store := memory.NewMemoryStorage()
	var cache identity.Cache = memory.NewIdentityCache(store)
	var rateStore generation.RateLimitStore = memory.NewRateLimitStore(store)
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		app.db = db
		app.Configs = postgres.NewConfigRepo(db)
		app.Runs = postgres.NewSyncRunRepo(db)
		deps = append(deps, server.Dependency{Name: "database", Critical: true, Ping: db.Health})
		app.log.Info("Using PostgreSQL storage")
	} else {
		app.Configs = memory.NewConfigRepo(store)
		app.Runs = memory.NewSyncRunRepo(store)
		app.log.Info("Using Memory storage")
	}

	// 2. Initialize Redis
	if cfg.Redis.URL != "" {
		rc, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			app.closeStores()
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		app.redisClient = rc
		cache = redisclient.NewIdentityCache(rc)
		rateStore = redisclient.NewRateLimitStore(rc)
		deps = append(deps, server.Dependency{Name: "redis", Ping: rc.Ping})
		app.log.Info("Using Redis for rate limits and identity cache")
	}

	// 3. Identity graph
	var g graph.Graph
	if cfg.Graph.URL != "" {
		hg := graph.NewHTTPGraph(cfg.Graph)
		g = hg
		deps = append(deps, server.Dependency{Name: "identity_graph", Ping: hg.Ping})
	} else {
		mg := graph.NewMemoryGraph()
		g = mg
		deps = append(deps, server.Dependency{Name: "identity_graph", Ping: mg.Ping})
		app.log.Warn("No identity graph configured, using in-memory graph")
	}

	// 4. Generation capability
	capability, err := llm.New(cfg.Generation)
	if err != nil {
		app.closeStores()
		return nil, err
	}

	// 5. Core services
	app.enricher = identity.NewEnricher(g, cfg.Graph.WelcomeIdentityID, cfg.Identity.EnrichTimeout)
	app.Resolver = identity.NewResolver(g, cache, app.enricher, cfg.Identity)
	app.Ingester = bulk.NewIngester(app.Resolver, cfg.Bulk)
	app.Pipeline = protocol.NewPipeline(app.Ingester, g, app.Runs, cfg.Protocol)
	app.Generation = generation.NewService(capability,
		generation.WithGate(generation.NewGate(rateStore, cfg.RateLimit)),
		generation.WithSyncer(app.Pipeline),
		generation.WithConfigRepository(app.Configs),
		generation.WithDefaultPolicy(cfg.Resilience.Policy("generation")),
	)

	app.server = server.NewServer(
		server.Config{Port: cfg.Server.Port, GRPCPort: cfg.Server.GRPCPort},
		server.Deps{
			Generator: app.Generation,
			Resolver:  app.Resolver,
			Ingester:  app.Ingester,
			Syncer:    app.Pipeline,
			Configs:   app.Configs,
			Runs:      app.Runs,
			Monitor:   server.NewMonitor(deps...),
		},
	)
	return app, nil
}

// Start starts the servers and background collectors.
func (a *App) Start(ctx context.Context) error {
	// Start Server
	go func() {
		if err := a.server.Start(); err != nil {
			a.log.Error("Server failed", "error", err)
		}
	}()

	// Start DB Metrics Collector
	if a.db != nil {
		metricsCtx, cancel := context.WithCancel(ctx)
		a.stopMetrics = cancel
		a.db.StartMetricsCollector(metricsCtx)
	}
	return nil
}

// Stop stops the servers, waits for in-flight enrichment and closes stores.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping eventsync...")

	var errs []error
	if a.server != nil {
		if err := a.server.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop server: %w", err))
		}
	}
	if err := a.Drain(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.stopMetrics != nil {
		a.stopMetrics()
	}
	a.closeStores()
	return errors.Join(errs...)
}

// Drain waits for background enrichment started by earlier resolutions.
func (a *App) Drain(ctx context.Context) error {
	if err := a.enricher.Wait(ctx); err != nil {
		a.log.Warn("Enrichment tasks still running at shutdown", "error", err)
		return err
	}
	return nil
}

func (a *App) closeStores() {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
}
