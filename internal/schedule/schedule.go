// Package schedule enqueues durable notification workflows for newly
// created reminders. The fire instant for a reminder is midnight UTC at
// the start of its calendar day; delivery itself is handled by the
// workflows package running on a separate worker process.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remindd/internal/config"
	"github.com/fyrsmithlabs/remindd/internal/logging"
	"github.com/fyrsmithlabs/remindd/internal/reminder"
)

// workflowIDPrefix namespaces notification workflow IDs. Combined with
// the reminder fingerprint it makes enqueueing idempotent: re-scheduling
// the same reminder hits the already-running workflow.
const workflowIDPrefix = "reminder-notify-"

// ErrInvalidFireDate reports a reminder date that cannot be converted to
// a fire instant. Stored reminders always carry validated dates, so this
// surfacing means a bug upstream rather than a transient fault.
var ErrInvalidFireDate = errors.New("invalid reminder date")

// FireTime converts a reminder date to the instant its notification
// fires: 00:00:00 UTC on that calendar day.
func FireTime(dateISO string) (time.Time, error) {
	day, err := time.Parse("2006-01-02", dateISO)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %v", ErrInvalidFireDate, dateISO, err)
	}
	return day, nil
}

// WorkflowID returns the deterministic workflow identifier for a
// reminder fingerprint.
func WorkflowID(fingerprint string) string {
	return workflowIDPrefix + fingerprint
}

// Scheduler enqueues notification delivery for a stored reminder.
type Scheduler interface {
	// Schedule enqueues the delivery workflow and returns its task
	// identifier. The reminder row already exists when this is called;
	// a scheduling failure must not undo its creation.
	Schedule(ctx context.Context, rem *reminder.Reminder) (string, error)

	// Enabled reports whether Schedule actually enqueues anything.
	// Callers that must distinguish "scheduled" from "skipped" check
	// this before calling Schedule.
	Enabled() bool

	// Close releases the backing client connection.
	Close()
}

// NewScheduler builds the scheduler selected by the configuration.
func NewScheduler(cfg config.SchedulerConfig, logger *logging.Logger) (Scheduler, error) {
	if cfg.SkipEnqueue {
		return NewNoopScheduler(logger), nil
	}
	return NewTemporalScheduler(cfg, logger)
}

// NoopScheduler validates and logs what would have been enqueued without
// contacting a Temporal server. Selected via scheduler.skip_enqueue for
// offline runs.
type NoopScheduler struct {
	logger *logging.Logger
}

// NewNoopScheduler creates a scheduler that only logs.
func NewNoopScheduler(logger *logging.Logger) *NoopScheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &NoopScheduler{logger: logger}
}

// Schedule logs the workflow that would run and returns its would-be ID.
func (s *NoopScheduler) Schedule(ctx context.Context, rem *reminder.Reminder) (string, error) {
	fireAt, err := FireTime(rem.DateISO)
	if err != nil {
		return "", err
	}

	workflowID := WorkflowID(rem.Fingerprint)
	s.logger.Info(ctx, "notification scheduling skipped",
		zap.String("workflow_id", workflowID),
		zap.String("fingerprint", rem.Fingerprint),
		zap.Time("fire_at", fireAt),
	)
	return workflowID, nil
}

// Enabled reports false; nothing is ever enqueued.
func (s *NoopScheduler) Enabled() bool { return false }

// Close is a no-op.
func (s *NoopScheduler) Close() {}

var (
	_ Scheduler = (*TemporalScheduler)(nil)
	_ Scheduler = (*NoopScheduler)(nil)
)
