// Package workflows provides Temporal workflow definitions for reminder delivery.
package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// TaskQueue is the queue reminder notification workers poll.
const TaskQueue = "reminder-notifications"

// ReminderNotificationInput configures one reminder delivery.
type ReminderNotificationInput struct {
	Fingerprint string    // Reminder identity, also embedded in the workflow ID
	UserID      string    // Recipient
	Text        string    // Commitment text to deliver
	DateISO     string    // Committed calendar day
	FireAt      time.Time // Delivery instant: midnight UTC of DateISO
	DeliveryURL string    // Webhook receiving the notification; empty logs instead
}

// ReminderNotificationResult reports the delivery outcome.
type ReminderNotificationResult struct {
	Delivered   bool      // Whether the notification reached the delivery endpoint
	DeliveredAt time.Time // Workflow time of delivery
	Skipped     bool      // True when no delivery URL is configured
	Errors      []string  // Any errors encountered
}

// ReminderNotificationWorkflow sleeps until the reminder's fire instant,
// then delivers the notification.
//
// The durable timer survives worker restarts; on replay the remaining
// delay is recomputed from workflow time, so delivery happens once at
// (or as soon as possible after) FireAt.
func ReminderNotificationWorkflow(ctx workflow.Context, input ReminderNotificationInput) (*ReminderNotificationResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Reminder notification scheduled",
		"fingerprint", input.Fingerprint,
		"user_id", input.UserID,
		"fire_at", input.FireAt)

	result := &ReminderNotificationResult{}

	if delay := input.FireAt.Sub(workflow.Now(ctx)); delay > 0 {
		if err := workflow.Sleep(ctx, delay); err != nil {
			result.Errors = append(result.Errors, FormatErrorForResult("timer interrupted", err))
			return result, err
		}
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var delivery DeliverNotificationResult
	err := workflow.ExecuteActivity(ctx, DeliverNotificationActivity, DeliverNotificationInput{
		Fingerprint: input.Fingerprint,
		UserID:      input.UserID,
		Text:        input.Text,
		DateISO:     input.DateISO,
		DeliveryURL: input.DeliveryURL,
	}).Get(ctx, &delivery)
	if err != nil {
		result.Errors = append(result.Errors, FormatErrorForResult("failed to deliver notification", err))
		return result, WrapActivityError("failed to deliver notification", err)
	}

	result.Delivered = delivery.Delivered
	result.Skipped = delivery.Skipped
	result.DeliveredAt = workflow.Now(ctx)

	logger.Info("Reminder notification complete",
		"fingerprint", input.Fingerprint,
		"delivered", result.Delivered,
		"skipped", result.Skipped)

	return result, nil
}

// Activity input/output types

type DeliverNotificationInput struct {
	Fingerprint string
	UserID      string
	Text        string
	DateISO     string
	DeliveryURL string
}

type DeliverNotificationResult struct {
	Delivered  bool
	Skipped    bool
	StatusCode int
}
