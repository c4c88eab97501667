// Package main provides the Temporal worker for reminder notification
// workflows.
//
// The worker picks up notification workflows enqueued by the remindd
// daemon, sleeps until each reminder's fire instant, and delivers the
// notification to the configured webhook.
//
// Usage:
//
//	REMINDD_SCHEDULER_HOST_PORT=localhost:7233 \
//	./remindd-worker
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remindd/internal/logging"
	"github.com/fyrsmithlabs/remindd/internal/workflows"
)

// Config holds worker configuration.
type Config struct {
	TemporalHost string
	Namespace    string
	TaskQueue    string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logCfg := logging.NewDefaultConfig()
	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig()

	logger.Info(ctx, "notification worker starting",
		zap.String("temporal_host", cfg.TemporalHost),
		zap.String("namespace", cfg.Namespace),
	)

	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalHost,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return fmt.Errorf("unable to create Temporal client: %w", err)
	}
	defer c.Close()

	logger.Info(ctx, "temporal client connected", zap.String("host", cfg.TemporalHost))

	w := worker.New(c, cfg.TaskQueue, worker.Options{})

	w.RegisterWorkflow(workflows.ReminderNotificationWorkflow)
	w.RegisterActivity(workflows.DeliverNotificationActivity)

	logger.Info(ctx, "worker configured",
		zap.String("task_queue", cfg.TaskQueue),
	)

	workerErrors := make(chan error, 1)
	go func() {
		logger.Info(ctx, "worker running")
		workerErrors <- w.Run(worker.InterruptCh())
	}()

	select {
	case err := <-workerErrors:
		if err != nil {
			return fmt.Errorf("worker error: %w", err)
		}
	case <-ctx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	// The worker stops on its own when the interrupt signal arrives.
	logger.Info(ctx, "worker stopped gracefully")
	return nil
}

func loadConfig() *Config {
	return &Config{
		TemporalHost: envOrDefault("REMINDD_SCHEDULER_HOST_PORT", "localhost:7233"),
		Namespace:    envOrDefault("REMINDD_SCHEDULER_NAMESPACE", "default"),
		TaskQueue:    envOrDefault("REMINDD_SCHEDULER_TASK_QUEUE", workflows.TaskQueue),
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
