// Remindd is a commitment reminder daemon.
//
// It ingests conversation messages over HTTP, NATS JetStream, and a
// spool directory, detects commitments that carry a future date, stores
// deduplicated reminders, and schedules notification delivery through
// Temporal workflows.
//
// Configuration is loaded from ~/.config/remindd/config.yaml with
// REMINDD_* environment overrides. See internal/config for details.
//
// Usage:
//
//	# Start the daemon with defaults
//	remindd
//
//	# Configure via environment
//	REMINDD_SERVER_PORT=9280 REMINDD_ANALYZER_PROVIDER=keyword remindd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remindd/internal/commitment"
	"github.com/fyrsmithlabs/remindd/internal/config"
	"github.com/fyrsmithlabs/remindd/internal/events"
	"github.com/fyrsmithlabs/remindd/internal/logging"
	"github.com/fyrsmithlabs/remindd/internal/pipeline"
	"github.com/fyrsmithlabs/remindd/internal/reminder"
	"github.com/fyrsmithlabs/remindd/internal/schedule"
	"github.com/fyrsmithlabs/remindd/internal/server"
	"github.com/fyrsmithlabs/remindd/internal/spool"
	"github.com/fyrsmithlabs/remindd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default ~/.config/remindd/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  remindd           Start the remindd daemon\n")
			fmt.Fprintf(os.Stderr, "  remindd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Daemon error: %v", err)
	}

	log.Println("Shutdown complete")
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("remindd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the remindd daemon and blocks until the context is
// cancelled.
//
// Initialization order:
//  1. Load and validate configuration
//  2. Initialize telemetry and the structured logger
//  3. Open the reminder store, analyzer, and notification scheduler
//  4. Wire the pipeline orchestrator
//  5. Start the optional NATS and spool intakes
//  6. Start the HTTP server
//
// Returns http.ErrServerClosed on graceful shutdown.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetryConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		_ = tel.Shutdown(context.Background())
	}()

	logger, err := initLogger(cfg, tel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info(ctx, "starting remindd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("analyzer_provider", cfg.Analyzer.Provider),
		zap.String("store_backend", cfg.Store.Backend))

	deps, err := initDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	logger.Info(ctx, "dependencies initialized",
		zap.Bool("analyzer_ready", deps.analyzer.Available()),
		zap.Bool("scheduling_enabled", deps.scheduler.Enabled()))

	orchestrator := pipeline.NewOrchestrator(deps.analyzer, deps.store, deps.scheduler,
		pipeline.WithLogger(logger))

	srv := server.NewServer(cfg.Server, orchestrator, deps.store, logger)
	srv.Echo().GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	if cfg.Events.Enabled {
		intake, err := events.NewIntake(cfg.Events, orchestrator, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize event intake: %w", err)
		}
		defer intake.Close()

		go func() {
			if err := intake.Run(ctx); err != nil {
				logger.Error(ctx, "event intake terminated", zap.Error(err))
			}
		}()
	}

	if cfg.Spool.Enabled {
		watcher, err := spool.NewWatcher(cfg.Spool, orchestrator, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize spool intake: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start spool intake: %w", err)
		}
		defer watcher.Stop()
	}

	logger.Info(ctx, "daemon configured",
		zap.String("health_endpoint", fmt.Sprintf("http://%s:%d/health", cfg.Server.Host, cfg.Server.Port)),
		zap.String("metrics_endpoint", "/metrics"),
		zap.Bool("events_intake", cfg.Events.Enabled),
		zap.Bool("spool_intake", cfg.Spool.Enabled))

	// Blocks until context cancellation.
	return srv.Start(ctx)
}

// dependencies holds the daemon's long-lived collaborators.
type dependencies struct {
	store     reminder.Store
	analyzer  commitment.Analyzer
	scheduler schedule.Scheduler
}

// Close releases all resources in reverse initialization order.
func (d *dependencies) Close() {
	if d.scheduler != nil {
		d.scheduler.Close()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
}

// initDependencies opens the reminder store, builds the commitment
// analyzer, and connects the notification scheduler. On error, anything
// already opened is closed.
func initDependencies(cfg *config.Config, logger *logging.Logger) (*dependencies, error) {
	store, err := reminder.NewStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open reminder store: %w", err)
	}

	analyzer, err := commitment.NewAnalyzer(cfg.Analyzer, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to build commitment analyzer: %w", err)
	}

	scheduler, err := schedule.NewScheduler(cfg.Scheduler, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to connect notification scheduler: %w", err)
	}

	return &dependencies{
		store:     store,
		analyzer:  analyzer,
		scheduler: scheduler,
	}, nil
}

// initLogger builds the structured logger from the logging section of
// the config tree.
func initLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	lcfg := logging.NewDefaultConfig()

	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	lcfg.Level = level
	lcfg.Format = cfg.Logging.Format
	lcfg.Output.OTEL = cfg.Logging.OTEL

	return logging.NewLogger(lcfg, tel.LoggerProvider())
}

// telemetryConfig maps the telemetry section of the config tree onto
// the telemetry package's richer configuration.
func telemetryConfig(cfg *config.Config) *telemetry.Config {
	tcfg := telemetry.NewDefaultConfig()
	tcfg.Enabled = cfg.Telemetry.Enabled
	if cfg.Telemetry.Endpoint != "" {
		tcfg.Endpoint = cfg.Telemetry.Endpoint
	}
	if cfg.Telemetry.Protocol != "" {
		tcfg.Protocol = cfg.Telemetry.Protocol
	}
	if cfg.Telemetry.ServiceName != "" {
		tcfg.ServiceName = cfg.Telemetry.ServiceName
	}
	tcfg.ServiceVersion = version
	tcfg.Insecure = cfg.Telemetry.Insecure
	tcfg.Sampling.Rate = cfg.Telemetry.SampleRate
	tcfg.Metrics.ExportInterval = cfg.Telemetry.ExportInterval
	return tcfg
}
