package config

import (
	"strings"
	"testing"
	"time"
)

// validConfig returns a config that passes Validate, for tests to mutate.
func validConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Scheduler.SkipEnqueue = true
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	if cfg.Server.Port != DefaultServerPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, DefaultServerPort)
	}
	if cfg.Server.ShutdownTimeout.Duration() != 10*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 10s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Analyzer.Provider != "keyword" {
		t.Errorf("Analyzer.Provider = %q, want %q", cfg.Analyzer.Provider, "keyword")
	}
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, "sqlite")
	}
	if cfg.Scheduler.TaskQueue != DefaultTaskQueue {
		t.Errorf("Scheduler.TaskQueue = %q, want %q", cfg.Scheduler.TaskQueue, DefaultTaskQueue)
	}
	if cfg.Events.Subject != DefaultEventsSubject {
		t.Errorf("Events.Subject = %q, want %q", cfg.Events.Subject, DefaultEventsSubject)
	}
	if cfg.Telemetry.SampleRate != 1.0 {
		t.Errorf("Telemetry.SampleRate = %v, want 1.0", cfg.Telemetry.SampleRate)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults with skip_enqueue are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "port zero rejected",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "port out of range rejected",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "unknown analyzer provider rejected",
			mutate:  func(c *Config) { c.Analyzer.Provider = "oracle" },
			wantErr: "unknown analyzer provider",
		},
		{
			name:    "anthropic without api key rejected",
			mutate:  func(c *Config) { c.Analyzer.Provider = "anthropic" },
			wantErr: "api_key",
		},
		{
			name: "anthropic with api key accepted",
			mutate: func(c *Config) {
				c.Analyzer.Provider = "anthropic"
				c.Analyzer.Providers = map[string]ProviderConfig{
					"anthropic": {APIKey: Secret("sk-test")},
				}
			},
		},
		{
			name:    "unknown store backend rejected",
			mutate:  func(c *Config) { c.Store.Backend = "dynamo" },
			wantErr: "unknown store backend",
		},
		{
			name: "sqlite without path rejected",
			mutate: func(c *Config) {
				c.Store.Backend = "sqlite"
				c.Store.Path = ""
			},
			wantErr: "store.path",
		},
		{
			name: "memory backend needs no path",
			mutate: func(c *Config) {
				c.Store.Backend = "memory"
				c.Store.Path = ""
			},
		},
		{
			name: "scheduling enabled requires delivery url",
			mutate: func(c *Config) {
				c.Scheduler.SkipEnqueue = false
				c.Scheduler.DeliveryURL = ""
			},
			wantErr: "delivery_url",
		},
		{
			name: "scheduling enabled with delivery url accepted",
			mutate: func(c *Config) {
				c.Scheduler.SkipEnqueue = false
				c.Scheduler.DeliveryURL = "http://localhost:8080/notify"
			},
		},
		{
			name: "events enabled without subject rejected",
			mutate: func(c *Config) {
				c.Events.Enabled = true
				c.Events.Subject = ""
			},
			wantErr: "events.subject",
		},
		{
			name: "spool enabled without dir rejected",
			mutate: func(c *Config) {
				c.Spool.Enabled = true
			},
			wantErr: "spool.dir",
		},
		{
			name: "telemetry enabled without endpoint rejected",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
			},
			wantErr: "telemetry.endpoint",
		},
		{
			name: "telemetry sample rate out of range rejected",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.Endpoint = "localhost:4317"
				c.Telemetry.SampleRate = 1.5
			},
			wantErr: "sample_rate",
		},
		{
			name: "rate limit enabled with zero rps rejected",
			mutate: func(c *Config) {
				c.Server.RateLimit.Enabled = true
				c.Server.RateLimit.RPS = 0
				c.Server.RateLimit.Burst = 0
			},
			wantErr: "rate limit rps",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err.Error(), tt.wantErr)
			}
		})
	}
}
