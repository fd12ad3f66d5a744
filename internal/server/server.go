// Package server exposes the generation and synchronization operations over
// HTTP, together with health, metrics and a gRPC health service.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vietddude/eventsync/internal/core/domain"
	"github.com/vietddude/eventsync/internal/core/resilience"
	"github.com/vietddude/eventsync/internal/generation"
	"github.com/vietddude/eventsync/internal/infra/storage"
	"github.com/vietddude/eventsync/internal/syncing/bulk"
	"github.com/vietddude/eventsync/internal/syncing/identity"
)

// Generator runs resilient generation.
type Generator interface {
	GenerateWithResilience(ctx context.Context, req generation.Request, policy *resilience.Policy) (*generation.Result, error)
}

// IdentityResolver resolves single identities.
type IdentityResolver interface {
	EnsureIdentity(ctx context.Context, h identity.Hints) domain.IdentityRecord
}

// BatchIngester resolves identity batches.
type BatchIngester interface {
	IngestBatch(ctx context.Context, req bulk.Request) domain.SyncBatchResult
}

// Syncer runs protocol sync.
type Syncer interface {
	SyncGeneratedConfig(ctx context.Context, ownerID string, cfg *domain.EventConfig) domain.SyncReport
}

// Deps are the operations served by the server. Configs and Runs may be nil.
type Deps struct {
	Generator Generator
	Resolver  IdentityResolver
	Ingester  BatchIngester
	Syncer    Syncer
	Configs   storage.ConfigRepository
	Runs      storage.SyncRunRepository
	Monitor   *Monitor
}

// Config holds listener settings.
type Config struct {
	Port     int
	GRPCPort int // 0 = disabled
}

// Server serves the HTTP API and, when enabled, the gRPC health service.
type Server struct {
	deps       Deps
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcHealth *health.Server
	grpcPort   int
	log        *slog.Logger
}

// NewServer creates a new server.
func NewServer(cfg Config, deps Deps) *Server {
	if deps.Monitor == nil {
		deps.Monitor = NewMonitor()
	}
	s := &Server{
		deps:     deps,
		grpcPort: cfg.GRPCPort,
		log:      slog.Default().With("component", "server"),
	}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.GRPCPort > 0 {
		s.grpcServer = grpc.NewServer()
		s.grpcHealth = health.NewServer()
		grpc_health_v1.RegisterHealthServer(s.grpcServer, s.grpcHealth)
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/generate", s.handleGenerate)
	mux.HandleFunc("POST /v1/identities", s.handleEnsureIdentity)
	mux.HandleFunc("POST /v1/batches", s.handleIngestBatch)
	mux.HandleFunc("POST /v1/sync", s.handleSync)
	mux.HandleFunc("GET /v1/configs/{id}", s.handleGetConfig)
	mux.HandleFunc("GET /v1/sync/{id}", s.handleGetRun)

	return mux
}

// Start starts the listeners and blocks until the HTTP server stops.
func (s *Server) Start() error {
	if s.grpcServer != nil {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.grpcPort))
		if err != nil {
			return fmt.Errorf("failed to listen on grpc port: %w", err)
		}
		s.grpcHealth.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		go func() {
			if err := s.grpcServer.Serve(lis); err != nil {
				s.log.Error("gRPC server stopped", "error", err)
			}
		}()
		s.log.Info("gRPC health service listening", "port", s.grpcPort)
	}

	s.log.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.grpcServer != nil {
		s.grpcHealth.Shutdown()
		s.grpcServer.GracefulStop()
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.deps.Monitor.CheckHealth(r.Context())
	s.syncGRPCStatus(report.SystemStatus)

	code := http.StatusOK
	if report.SystemStatus == StatusCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": string(report.SystemStatus)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	report := s.deps.Monitor.CheckHealth(r.Context())
	s.syncGRPCStatus(report.SystemStatus)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) syncGRPCStatus(status SystemStatus) {
	if s.grpcHealth == nil {
		return
	}
	serving := grpc_health_v1.HealthCheckResponse_SERVING
	if status == StatusCritical {
		serving = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	s.grpcHealth.SetServingStatus("", serving)
}
