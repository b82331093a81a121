// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

// Package config loads and validates application configuration.
//
// Configuration is layered with Koanf v2: built-in defaults, then an optional
// YAML file, then environment variables (highest priority). See koanf.go for
// the load order and the environment variable mapping table.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root application configuration.
type Config struct {
	Platform PlatformConfig `koanf:"platform"`
	Sync     SyncConfig     `koanf:"sync"`
	Database DatabaseConfig `koanf:"database"`
	Server   ServerConfig   `koanf:"server"`
	API      APIConfig      `koanf:"api"`
	NATS     NATSConfig     `koanf:"nats"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// PlatformConfig configures the ad platform's reporting API client.
type PlatformConfig struct {
	// BaseURL is the platform API root, e.g. https://graph.example.com/v19.0
	BaseURL string `koanf:"base_url" validate:"required,url"`

	// AccessToken is a static bearer token used when no per-tenant token
	// provider is wired in. Per-tenant tokens from the connection store take
	// precedence.
	AccessToken string `koanf:"access_token"`

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// MaxRetries is the maximum number of retry attempts for transient
	// failures (408, 409, 425, 429 and 5xx responses, network errors).
	MaxRetries int `koanf:"max_retries" validate:"gte=0,lte=10"`

	// RetryBaseDelay is the initial backoff delay; it doubles per attempt.
	RetryBaseDelay time.Duration `koanf:"retry_base_delay" validate:"gt=0"`

	// PollInterval is the fixed cadence for async report status polling.
	// This is deliberately not exponential - it is a polling cadence, not a
	// retry backoff.
	PollInterval time.Duration `koanf:"poll_interval" validate:"gt=0"`

	// PollTimeout is the maximum total wait for one report job to complete.
	PollTimeout time.Duration `koanf:"poll_timeout" validate:"gt=0"`

	// PageSize is the result page size requested when fetching report rows.
	PageSize int `koanf:"page_size" validate:"gt=0,lte=5000"`

	// RequestsPerSecond caps outbound request rate below the platform's
	// published budget. 0 disables the limiter.
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gte=0"`
}

// SyncConfig configures the sync engine.
type SyncConfig struct {
	// Interval is the periodic incremental sync cadence. 0 disables the loop;
	// syncs then only run via the API trigger.
	Interval time.Duration `koanf:"interval"`

	// LookbackDays is the incremental window length counted back from today.
	LookbackDays int `koanf:"lookback_days" validate:"gt=0,lte=365"`

	// OverlapDays extends the incremental window backward from the previous
	// run's end to re-ingest late-arriving attribution corrections.
	OverlapDays int `koanf:"overlap_days" validate:"gte=0,lte=30"`

	// MaxBackfillDays caps the total span of a backfill window.
	MaxBackfillDays int `koanf:"max_backfill_days" validate:"gt=0"`

	// Parallelism is the number of report tasks executed concurrently.
	Parallelism int `koanf:"parallelism" validate:"gt=0,lte=32"`

	// BatchSize is the row count per upsert statement.
	BatchSize int `koanf:"batch_size" validate:"gt=0,lte=10000"`

	// Source labels rows written to the KPI table, e.g. "ads".
	Source string `koanf:"source" validate:"required"`
}

// DatabaseConfig configures the DuckDB store.
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	// Threads is the DuckDB thread count; 0 means runtime.NumCPU().
	Threads                int  `koanf:"threads" validate:"gte=0"`
	PreserveInsertionOrder bool `koanf:"preserve_insertion_order"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host    string        `koanf:"host" validate:"required"`
	Port    int           `koanf:"port" validate:"gt=0,lte=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// APIConfig configures API behavior.
type APIConfig struct {
	DefaultPageSize int           `koanf:"default_page_size" validate:"gt=0"`
	MaxPageSize     int           `koanf:"max_page_size" validate:"gt=0"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"gt=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// NATSConfig configures the optional NATS transport for sync lifecycle events.
// When disabled (or when the binary is built without the nats tag) events are
// published on an in-process GoChannel bus instead.
type NATSConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for consistency. Struct tag validation
// runs first; cross-field checks that tags cannot express follow.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	if c.Sync.OverlapDays > c.Sync.LookbackDays {
		return fmt.Errorf("config validation: sync.overlap_days (%d) must not exceed sync.lookback_days (%d)",
			c.Sync.OverlapDays, c.Sync.LookbackDays)
	}

	if c.API.DefaultPageSize > c.API.MaxPageSize {
		return fmt.Errorf("config validation: api.default_page_size (%d) must not exceed api.max_page_size (%d)",
			c.API.DefaultPageSize, c.API.MaxPageSize)
	}

	if c.Platform.PollTimeout < c.Platform.PollInterval {
		return fmt.Errorf("config validation: platform.poll_timeout (%s) must be at least platform.poll_interval (%s)",
			c.Platform.PollTimeout, c.Platform.PollInterval)
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("config validation: nats.url is required when nats.enabled is true")
	}

	return nil
}
