package config

import (
	"github.com/vietddude/eventsync/internal/core/resilience"
	"github.com/vietddude/eventsync/internal/generation"
	"github.com/vietddude/eventsync/internal/infra/graph"
	"github.com/vietddude/eventsync/internal/infra/llm"
	redisclient "github.com/vietddude/eventsync/internal/infra/redis"
	"github.com/vietddude/eventsync/internal/infra/storage/postgres"
	"github.com/vietddude/eventsync/internal/syncing/bulk"
	"github.com/vietddude/eventsync/internal/syncing/identity"
	"github.com/vietddude/eventsync/internal/syncing/protocol"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig               `yaml:"server"`
	Logging    LoggingConfig              `yaml:"logging"`
	Redis      redisclient.Config         `yaml:"redis"`
	Database   postgres.Config            `yaml:"database"`
	Generation llm.Config                 `yaml:"generation"`
	Graph      graph.Config               `yaml:"graph"`
	Resilience resilience.Config          `yaml:"resilience"`
	Identity   identity.Config            `yaml:"identity"`
	Bulk       bulk.Config                `yaml:"bulk"`
	Protocol   protocol.Config            `yaml:"protocol"`
	RateLimit  generation.RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig holds HTTP and gRPC server settings.
type ServerConfig struct {
	Port     int `yaml:"port"`
	GRPCPort int `yaml:"grpc_port"` // 0 = disabled
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}
