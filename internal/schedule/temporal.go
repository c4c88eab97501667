package schedule

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remindd/internal/config"
	"github.com/fyrsmithlabs/remindd/internal/logging"
	"github.com/fyrsmithlabs/remindd/internal/reminder"
	"github.com/fyrsmithlabs/remindd/internal/workflows"
)

// startWorkflowTimeout bounds the enqueue call so a hung frontend cannot
// stall message processing.
const startWorkflowTimeout = 30 * time.Second

// TemporalScheduler enqueues ReminderNotificationWorkflow runs on a
// Temporal task queue.
type TemporalScheduler struct {
	client      client.Client
	taskQueue   string
	deliveryURL string
	logger      *logging.Logger
}

// NewTemporalScheduler connects to the Temporal frontend named by the
// configuration.
func NewTemporalScheduler(cfg config.SchedulerConfig, logger *logging.Logger) (*TemporalScheduler, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal at %s: %w", cfg.HostPort, err)
	}

	taskQueue := cfg.TaskQueue
	if taskQueue == "" {
		taskQueue = workflows.TaskQueue
	}

	return &TemporalScheduler{
		client:      c,
		taskQueue:   taskQueue,
		deliveryURL: cfg.DeliveryURL,
		logger:      logger,
	}, nil
}

// Schedule starts the notification workflow for the reminder. The
// workflow ID is derived from the fingerprint, so scheduling the same
// reminder twice does not start a second run.
func (s *TemporalScheduler) Schedule(ctx context.Context, rem *reminder.Reminder) (string, error) {
	fireAt, err := FireTime(rem.DateISO)
	if err != nil {
		return "", err
	}

	input := workflows.ReminderNotificationInput{
		Fingerprint: rem.Fingerprint,
		UserID:      rem.UserID,
		Text:        rem.Text,
		DateISO:     rem.DateISO,
		FireAt:      fireAt,
		DeliveryURL: s.deliveryURL,
	}

	opts := client.StartWorkflowOptions{
		ID:        WorkflowID(rem.Fingerprint),
		TaskQueue: s.taskQueue,
	}

	startCtx, cancel := context.WithTimeout(ctx, startWorkflowTimeout)
	defer cancel()

	we, err := s.client.ExecuteWorkflow(startCtx, opts, workflows.ReminderNotificationWorkflow, input)
	if err != nil {
		return "", fmt.Errorf("failed to start notification workflow: %w", err)
	}

	s.logger.Info(ctx, "notification workflow enqueued",
		zap.String("workflow_id", we.GetID()),
		zap.String("run_id", we.GetRunID()),
		zap.String("fingerprint", rem.Fingerprint),
		zap.Time("fire_at", fireAt),
	)
	return we.GetID(), nil
}

// Enabled reports true; this scheduler always enqueues.
func (s *TemporalScheduler) Enabled() bool { return true }

// Close shuts down the Temporal client connection.
func (s *TemporalScheduler) Close() {
	s.client.Close()
}
