// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Engines receive immutable copies of the pricing and ranking sections.
// - Provide New() to build a Config with defaults.
// - External errors are wrapped with this package's sentinels.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/okian/tutormarket/internal/domain/pricing"
	"github.com/okian/tutormarket/internal/domain/scoring"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DBDriver is postgres or sqlite; DBDSN is passed to the driver as is.
	DBDriver string `koanf:"db_driver"`
	DBDSN    string `koanf:"db_dsn"`

	// LogQueueSize bounds the in-memory suggestion log queue.
	LogQueueSize int `koanf:"log_queue_size"`

	// LogWorkerCount sets the number of sink workers.
	LogWorkerCount int `koanf:"log_worker_count"`

	// AcceptanceDedupeSize bounds the acceptance idempotency cache.
	AcceptanceDedupeSize int `koanf:"acceptance_dedupe_size"`

	RateLimitRequests      int      `koanf:"rate_limit_requests"`
	RateLimitWindowSeconds int      `koanf:"rate_limit_window_seconds"`
	CORSAllowedOrigins     []string `koanf:"cors_allowed_origins"`

	// SinkFailureThreshold consecutive sink failures open the breaker for
	// SinkOpenTimeoutSeconds.
	SinkFailureThreshold   int `koanf:"sink_failure_threshold"`
	SinkOpenTimeoutSeconds int `koanf:"sink_open_timeout_seconds"`

	// RankingConcurrency bounds parallel profile loads when ordering candidates.
	RankingConcurrency int `koanf:"ranking_concurrency"`

	ShutdownTimeoutSeconds int `koanf:"shutdown_timeout_seconds"`

	Pricing pricing.Config `koanf:"pricing"`
	Ranking scoring.Caps   `koanf:"ranking"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		DBDriver:               "sqlite",
		DBDSN:                  "file:tutormarket.db?_busy_timeout=5000",
		LogQueueSize:           10_000,
		LogWorkerCount:         runtime.NumCPU() * 2,
		AcceptanceDedupeSize:   50_000,
		RateLimitRequests:      100,
		RateLimitWindowSeconds: 60,
		CORSAllowedOrigins:     []string{"*"},
		SinkFailureThreshold:   5,
		SinkOpenTimeoutSeconds: 30,
		RankingConcurrency:     8,
		ShutdownTimeoutSeconds: 15,
		Pricing:                pricing.DefaultConfig(),
		Ranking:                scoring.DefaultCaps(),
	}
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DBDriver != "postgres" && c.DBDriver != "sqlite":
		return fmt.Errorf("%w %q", ErrUnknownDriver, c.DBDriver)
	case c.DBDSN == "":
		return fmt.Errorf("%w: db_dsn must not be empty", ErrInvalidConfig)
	case c.LogQueueSize <= 0 || c.LogWorkerCount <= 0:
		return fmt.Errorf("%w: log queue size and worker count must be positive", ErrInvalidConfig)
	case c.RateLimitRequests < 0 || c.RateLimitWindowSeconds < 0:
		return fmt.Errorf("%w: rate limit must not be negative", ErrInvalidConfig)
	}
	if err := c.Pricing.Validate(); err != nil {
		return fmt.Errorf("%w: pricing: %w", ErrInvalidConfig, err)
	}
	return nil
}

// RateLimitWindow returns the rate limit window as a duration.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

// SinkOpenTimeout returns how long the sink breaker stays open.
func (c *Config) SinkOpenTimeout() time.Duration {
	return time.Duration(c.SinkOpenTimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds graceful shutdown.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// String renders the config with the DSN redacted.
func (c *Config) String() string {
	dsn := c.DBDSN
	if i := strings.Index(dsn, "@"); i > 0 {
		dsn = "***" + dsn[i:]
	}
	return fmt.Sprintf("addr=%s db=%s(%s) queue=%d workers=%d log=%s/%s",
		c.Addr, c.DBDriver, dsn, c.LogQueueSize, c.LogWorkerCount, c.LogLevel, c.LogFormat)
}
