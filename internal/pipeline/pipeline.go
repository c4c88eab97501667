// Package pipeline drives one inbound message through commitment
// analysis, idempotent reminder creation, and notification scheduling.
//
// Each message resolves to exactly one terminal state:
//
//	filtered_out            not a user message with content
//	no_commitment           analyzed, nothing actionable found
//	reminder_existing       duplicate commitment, nothing scheduled
//	reminder_created        stored, scheduling disabled by configuration
//	notification_scheduled  stored and enqueued
//	notification_failed     stored, enqueue failed, reminder kept
//
// Analyzer and storage failures return an error to the caller so an
// at-least-once event source can redeliver the message. Once a reminder
// row exists nothing downstream rolls it back.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remindd/internal/commitment"
	"github.com/fyrsmithlabs/remindd/internal/conversation"
	"github.com/fyrsmithlabs/remindd/internal/logging"
	"github.com/fyrsmithlabs/remindd/internal/reminder"
	"github.com/fyrsmithlabs/remindd/internal/schedule"
)

// State is the terminal state reached for one inbound message.
type State string

const (
	StateFilteredOut           State = "filtered_out"
	StateNoCommitment          State = "no_commitment"
	StateReminderExisting      State = "reminder_existing"
	StateReminderCreated       State = "reminder_created"
	StateNotificationScheduled State = "notification_scheduled"
	StateNotificationFailed    State = "notification_failed"
)

// Outcome reports how a message was resolved.
type Outcome struct {
	State    State              `json:"state"`
	Reminder *reminder.Reminder `json:"reminder,omitempty"`
	TaskID   string             `json:"task_id,omitempty"`

	// ScheduleErr carries the non-fatal enqueue failure that produced a
	// notification_failed state. The reminder itself was kept.
	ScheduleErr error `json:"-"`
}

// Orchestrator wires the commitment analyzer, the reminder store, and
// the notification scheduler together.
type Orchestrator struct {
	analyzer  commitment.Analyzer
	store     reminder.Store
	scheduler schedule.Scheduler
	logger    *logging.Logger
	metrics   *Metrics
	now       func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets a custom logger for the orchestrator.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets custom metrics for the orchestrator.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// NewOrchestrator creates an orchestrator. A nil scheduler behaves like
// a disabled one: reminders are created and scheduling is skipped.
func NewOrchestrator(analyzer commitment.Analyzer, store reminder.Store, scheduler schedule.Scheduler, opts ...Option) *Orchestrator {
	metrics, _ := NewMetrics(nil)

	o := &Orchestrator{
		analyzer:  analyzer,
		store:     store,
		scheduler: scheduler,
		logger:    logging.NewNop(),
		metrics:   metrics,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Process runs one inbound message to a terminal state. A nil error
// means the event is fully handled; a non-nil error means the caller
// should redeliver it. Concurrent calls for different messages are safe;
// duplicate deliveries of the same message both run and converge on the
// store's conditional write.
func (o *Orchestrator) Process(ctx context.Context, msg *conversation.InboundMessage) (*Outcome, error) {
	start := o.now()

	ctx, span := StartSpan(ctx, "pipeline.process", msg)
	defer span.End()

	if !msg.Eligible() {
		o.logger.Debug(ctx, "message filtered out",
			zap.String("message_id", msg.ID),
			zap.String("role", string(msg.Role)),
		)
		return o.finish(ctx, start, &Outcome{State: StateFilteredOut}, "not an analyzable user message")
	}

	// The message's own timestamp anchors "future"; processing lag must
	// not shift which dates qualify.
	reference := msg.CreatedAt
	if reference.IsZero() {
		reference = o.now()
	}

	res, err := o.analyzer.Analyze(ctx, msg.Content, reference.UTC())
	if err != nil {
		return nil, o.fatal(ctx, "analyze", fmt.Errorf("failed to analyze message %s: %w", msg.ID, err))
	}
	if !res.HasCommitment {
		return o.finish(ctx, start, &Outcome{State: StateNoCommitment}, "no commitment found")
	}

	c := res.Commitment
	stored, created, err := o.store.CreateIfAbsent(ctx, &reminder.Reminder{
		Fingerprint: reminder.Fingerprint(msg.UserID, c.DateISO, c.Text),
		UserID:      msg.UserID,
		DateISO:     c.DateISO,
		Text:        c.Text,
		Confidence:  c.Confidence,
		SessionID:   msg.SessionID,
		MessageID:   msg.ID,
	})
	if err != nil {
		return nil, o.fatal(ctx, "store", fmt.Errorf("failed to store reminder for message %s: %w", msg.ID, err))
	}
	if !created {
		o.logger.Info(ctx, "reminder already exists",
			zap.String("fingerprint", stored.Fingerprint),
			zap.String("date_iso", stored.DateISO),
		)
		return o.finish(ctx, start, &Outcome{State: StateReminderExisting, Reminder: stored}, "duplicate commitment")
	}

	o.logger.Info(ctx, "reminder created",
		zap.String("fingerprint", stored.Fingerprint),
		zap.String("user_id", stored.UserID),
		zap.String("date_iso", stored.DateISO),
		zap.Float64("confidence", stored.Confidence),
	)

	if o.scheduler == nil || !o.scheduler.Enabled() {
		o.logger.Info(ctx, "notification scheduling skipped",
			zap.String("fingerprint", stored.Fingerprint),
		)
		return o.finish(ctx, start, &Outcome{State: StateReminderCreated, Reminder: stored}, "scheduling disabled")
	}

	taskID, err := o.scheduler.Schedule(ctx, stored)
	if err != nil {
		if errors.Is(err, schedule.ErrInvalidFireDate) {
			// A stored reminder with an unusable date is a bug, not an
			// outage; surface it before anything is enqueued.
			return nil, o.fatal(ctx, "schedule", fmt.Errorf("reminder %s: %w", stored.Fingerprint, err))
		}
		o.logger.Warn(ctx, "notification scheduling failed, reminder kept",
			zap.String("fingerprint", stored.Fingerprint),
			zap.Error(err),
		)
		RecordError(ctx, err)
		return o.finish(ctx, start, &Outcome{State: StateNotificationFailed, Reminder: stored, ScheduleErr: err}, "enqueue failed")
	}

	o.logger.Info(ctx, "notification scheduled",
		zap.String("fingerprint", stored.Fingerprint),
		zap.String("task_id", taskID),
	)
	return o.finish(ctx, start, &Outcome{State: StateNotificationScheduled, Reminder: stored, TaskID: taskID}, "notification scheduled")
}

func (o *Orchestrator) finish(ctx context.Context, start time.Time, out *Outcome, status string) (*Outcome, error) {
	o.metrics.RecordOutcome(ctx, out.State, o.now().Sub(start))
	SetSpanStatus(ctx, codes.Ok, status)
	return out, nil
}

func (o *Orchestrator) fatal(ctx context.Context, stage string, err error) error {
	o.metrics.RecordFailure(ctx, stage)
	RecordError(ctx, err)
	SetSpanStatus(ctx, codes.Error, stage+" failed")
	return err
}
