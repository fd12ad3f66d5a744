package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/eventsync/internal/core/resilience"
	"github.com/vietddude/eventsync/internal/generation"
	"github.com/vietddude/eventsync/internal/syncing/bulk"
	"github.com/vietddude/eventsync/internal/syncing/identity"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding ${VAR} references and
// applying defaults.
func Parse(data []byte) (*AppConfig, error) {
	cfg := preset()
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied, suitable for
// running entirely in memory.
func Default() *AppConfig {
	cfg := preset()
	cfg.ApplyDefaults()
	return &cfg
}

// preset returns the config that YAML is decoded over. Fields where zero is
// a meaningful setting get their defaults here instead of in ApplyDefaults,
// so an explicit zero in the file survives.
func preset() AppConfig {
	return AppConfig{
		Resilience: resilience.Config{MaxRetries: resilience.DefaultPolicy().MaxRetries},
	}
}

// ApplyDefaults fills unset fields.
func (c *AppConfig) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	def := resilience.DefaultPolicy()
	r := &c.Resilience
	if r.InitialDelay == 0 {
		r.InitialDelay = def.InitialDelay
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = def.MaxDelay
	}
	if r.Multiplier == 0 {
		r.Multiplier = def.Multiplier
	}
	if r.AttemptTimeout == 0 {
		r.AttemptTimeout = 60 * time.Second
	}

	idDef := identity.DefaultConfig()
	id := &c.Identity
	if id.SearchTimeout == 0 {
		id.SearchTimeout = idDef.SearchTimeout
	}
	if id.CreateTimeout == 0 {
		id.CreateTimeout = idDef.CreateTimeout
	}
	if id.EnrichTimeout == 0 {
		id.EnrichTimeout = idDef.EnrichTimeout
	}
	if id.CacheTTL == 0 {
		id.CacheTTL = idDef.CacheTTL
	}
	if id.FallbackTTL == 0 {
		id.FallbackTTL = idDef.FallbackTTL
	}

	if c.Bulk.Concurrency == 0 {
		c.Bulk.Concurrency = bulk.DefaultConcurrency
	}
	if c.Protocol.TagTimeout == 0 {
		c.Protocol.TagTimeout = 5 * time.Second
	}

	rlDef := generation.DefaultRateLimit()
	if c.RateLimit.Quota == 0 {
		c.RateLimit.Quota = rlDef.Quota
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = rlDef.Window
	}
	if c.Generation.MaxTokens == 0 {
		c.Generation.MaxTokens = 4096
	}
}

// Validate rejects settings that cannot work.
func (c *AppConfig) Validate() error {
	if c.Resilience.MaxRetries < 0 {
		return fmt.Errorf("resilience.max_retries must be >= 0, got %d", c.Resilience.MaxRetries)
	}
	if c.Resilience.Multiplier < 1 {
		return fmt.Errorf("resilience.multiplier must be >= 1, got %v", c.Resilience.Multiplier)
	}
	if c.Bulk.Concurrency < 0 {
		return fmt.Errorf("bulk.concurrency must be >= 0, got %d", c.Bulk.Concurrency)
	}
	switch c.Generation.Provider {
	case "", "static", "anthropic", "openai":
	default:
		return fmt.Errorf("generation.provider %q is not supported", c.Generation.Provider)
	}
	return nil
}
