// Package config provides configuration loading for remindd.
//
// Configuration is loaded from a YAML file with environment variable
// overrides and sensible defaults. This package covers the HTTP server,
// the commitment analyzer, the reminder store, the notification
// scheduler, and the intake surfaces (NATS, spool directory).
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete remindd configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Analyzer  AnalyzerConfig  `koanf:"analyzer"`
	Store     StoreConfig     `koanf:"store"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Events    EventsConfig    `koanf:"events"`
	Spool     SpoolConfig     `koanf:"spool"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string          `koanf:"host"`
	Port            int             `koanf:"port"`
	ReadTimeout     Duration        `koanf:"read_timeout"`
	WriteTimeout    Duration        `koanf:"write_timeout"`
	IdleTimeout     Duration        `koanf:"idle_timeout"`
	ShutdownTimeout Duration        `koanf:"shutdown_timeout"`
	MaxBodyBytes    int64           `koanf:"max_body_bytes"`
	RateLimit       RateLimitConfig `koanf:"rate_limit"`
}

// RateLimitConfig holds per-client request rate limiting settings.
type RateLimitConfig struct {
	Enabled bool    `koanf:"enabled"`
	RPS     float64 `koanf:"rps"`
	Burst   int     `koanf:"burst"`
}

// AnalyzerConfig holds commitment analyzer configuration.
//
// Provider selects the analysis strategy:
//   - "anthropic" or "openai": model-backed analysis with keyword fallback
//   - "keyword": deterministic keyword + date pattern matching only
//   - "disabled": no analysis, every message reports no commitment
type AnalyzerConfig struct {
	Provider  string                    `koanf:"provider"`
	Providers map[string]ProviderConfig `koanf:"providers"`
}

// ProviderConfig holds per-provider model settings.
type ProviderConfig struct {
	Model     string   `koanf:"model"`
	APIKey    Secret   `koanf:"api_key"`
	BaseURL   string   `koanf:"base_url"`
	MaxTokens int      `koanf:"max_tokens"`
	Timeout   Duration `koanf:"timeout"`
}

// StoreConfig holds reminder store configuration.
type StoreConfig struct {
	// Backend is "sqlite" or "memory".
	Backend  string `koanf:"backend"`
	Path     string `koanf:"path"`
	MaxConns int    `koanf:"max_conns"`
}

// SchedulerConfig holds notification scheduler configuration.
type SchedulerConfig struct {
	// SkipEnqueue disables task enqueueing entirely. Reminders are still
	// created; scheduling is logged and intentionally skipped. Intended
	// for offline and isolated test runs.
	SkipEnqueue bool   `koanf:"skip_enqueue"`
	HostPort    string `koanf:"host_port"`
	Namespace   string `koanf:"namespace"`
	TaskQueue   string `koanf:"task_queue"`
	DeliveryURL string `koanf:"delivery_url"`
}

// EventsConfig holds NATS intake configuration.
type EventsConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	Stream  string `koanf:"stream"`
	Subject string `koanf:"subject"`
	Durable string `koanf:"durable"`
}

// SpoolConfig holds the drop-directory intake configuration.
type SpoolConfig struct {
	Enabled bool   `koanf:"enabled"`
	Dir     string `koanf:"dir"`
}

// LoggingConfig holds the logging section of the config tree.
//
// The logging package carries its own richer Config; this section covers
// the fields operators commonly tune, mapped across at startup.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig holds the telemetry section of the config tree.
type TelemetryConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Endpoint       string   `koanf:"endpoint"`
	Protocol       string   `koanf:"protocol"`
	ServiceName    string   `koanf:"service_name"`
	Insecure       bool     `koanf:"insecure"`
	SampleRate     float64  `koanf:"sample_rate"`
	ExportInterval Duration `koanf:"export_interval"`
}

// Defaults applied when the file and environment leave fields unset.
const (
	DefaultServerHost      = "127.0.0.1"
	DefaultServerPort      = 9180
	DefaultStoreBackend    = "sqlite"
	DefaultStorePath       = "~/.local/share/remindd/reminders.db"
	DefaultStoreMaxConns   = 4
	DefaultTemporalHost    = "localhost:7233"
	DefaultNamespace       = "default"
	DefaultTaskQueue       = "reminder-notifications"
	DefaultEventsURL       = "nats://localhost:4222"
	DefaultEventsStream    = "REMINDD"
	DefaultEventsSubject   = "remindd.messages.>"
	DefaultEventsDurable   = "remindd-pipeline"
	DefaultAnalyzerTimeout = 60 * time.Second
)

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultServerHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = Duration(30 * time.Second)
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = Duration(120 * time.Second)
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20 // 1MB
	}
	if cfg.Server.RateLimit.RPS == 0 {
		cfg.Server.RateLimit.RPS = 10
	}
	if cfg.Server.RateLimit.Burst == 0 {
		cfg.Server.RateLimit.Burst = 20
	}

	// Analyzer defaults: deterministic strategy unless a provider is set
	if cfg.Analyzer.Provider == "" {
		cfg.Analyzer.Provider = "keyword"
	}
	for name, pc := range cfg.Analyzer.Providers {
		if pc.Timeout == 0 {
			pc.Timeout = Duration(DefaultAnalyzerTimeout)
			cfg.Analyzer.Providers[name] = pc
		}
	}

	// Store defaults
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = DefaultStoreBackend
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath
	}
	if cfg.Store.MaxConns == 0 {
		cfg.Store.MaxConns = DefaultStoreMaxConns
	}

	// Scheduler defaults
	if cfg.Scheduler.HostPort == "" {
		cfg.Scheduler.HostPort = DefaultTemporalHost
	}
	if cfg.Scheduler.Namespace == "" {
		cfg.Scheduler.Namespace = DefaultNamespace
	}
	if cfg.Scheduler.TaskQueue == "" {
		cfg.Scheduler.TaskQueue = DefaultTaskQueue
	}

	// Events defaults (applied even when disabled so enabling via env
	// alone yields a working intake)
	if cfg.Events.URL == "" {
		cfg.Events.URL = DefaultEventsURL
	}
	if cfg.Events.Stream == "" {
		cfg.Events.Stream = DefaultEventsStream
	}
	if cfg.Events.Subject == "" {
		cfg.Events.Subject = DefaultEventsSubject
	}
	if cfg.Events.Durable == "" {
		cfg.Events.Durable = DefaultEventsDurable
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	// Telemetry defaults
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "remindd"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = Duration(60 * time.Second)
	}
}

// Validate validates the configuration.
//
// Returns an error if:
//   - Server port is outside 1-65535
//   - Any timeout is non-positive
//   - The analyzer provider is unknown, or a model provider is selected
//     without an API key
//   - The store backend is unknown, or sqlite is selected without a path
//   - Scheduling is enabled without a delivery URL
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("server shutdown timeout must be positive")
	}
	if c.Server.MaxBodyBytes < 0 {
		return errors.New("server max body bytes must not be negative")
	}
	if c.Server.RateLimit.Enabled {
		if c.Server.RateLimit.RPS <= 0 {
			return errors.New("rate limit rps must be positive when enabled")
		}
		if c.Server.RateLimit.Burst < 1 {
			return errors.New("rate limit burst must be at least 1 when enabled")
		}
	}

	switch c.Analyzer.Provider {
	case "keyword", "disabled":
	case "anthropic", "openai":
		pc, ok := c.Analyzer.Providers[c.Analyzer.Provider]
		if !ok || !pc.APIKey.IsSet() {
			return fmt.Errorf("analyzer provider %q requires providers.%s.api_key", c.Analyzer.Provider, c.Analyzer.Provider)
		}
	default:
		return fmt.Errorf("unknown analyzer provider: %q", c.Analyzer.Provider)
	}

	switch c.Store.Backend {
	case "sqlite":
		if c.Store.Path == "" {
			return errors.New("store.path required for sqlite backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store backend: %q", c.Store.Backend)
	}
	if c.Store.MaxConns < 1 {
		return errors.New("store.max_conns must be at least 1")
	}

	if !c.Scheduler.SkipEnqueue {
		if c.Scheduler.HostPort == "" {
			return errors.New("scheduler.host_port required unless skip_enqueue is set")
		}
		if c.Scheduler.DeliveryURL == "" {
			return errors.New("scheduler.delivery_url required unless skip_enqueue is set")
		}
	}

	if c.Events.Enabled {
		if c.Events.URL == "" {
			return errors.New("events.url required when events intake is enabled")
		}
		if c.Events.Subject == "" {
			return errors.New("events.subject required when events intake is enabled")
		}
	}

	if c.Spool.Enabled && c.Spool.Dir == "" {
		return errors.New("spool.dir required when spool intake is enabled")
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return errors.New("telemetry.endpoint required when telemetry is enabled")
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			return fmt.Errorf("telemetry.sample_rate must be in [0,1], got %v", c.Telemetry.SampleRate)
		}
	}

	return nil
}
