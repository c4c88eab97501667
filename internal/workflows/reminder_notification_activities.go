package workflows

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
)

// deliveryHTTPTimeout bounds one delivery attempt; Temporal's retry
// policy governs attempts across it.
const deliveryHTTPTimeout = 30 * time.Second

// notificationPayload is the JSON body posted to the delivery endpoint.
type notificationPayload struct {
	UserID       string `json:"userId"`
	ReminderText string `json:"reminderText"`
	DateISO      string `json:"dateIso"`
	Fingerprint  string `json:"fingerprint"`
}

// DeliverNotificationActivity posts the reminder to the delivery endpoint.
//
// Client errors (4xx) are permanent and not retried; server errors and
// network failures are returned plainly so the retry policy applies.
func DeliverNotificationActivity(ctx context.Context, input DeliverNotificationInput) (*DeliverNotificationResult, error) {
	logger := activity.GetLogger(ctx)
	start := time.Now()

	result := &DeliverNotificationResult{}

	if input.DeliveryURL == "" {
		// No endpoint configured; the reminder fires into the logs.
		logger.Info("Reminder due (no delivery URL configured)",
			"fingerprint", input.Fingerprint,
			"user_id", input.UserID,
			"text", input.Text,
			"date", input.DateISO)
		result.Skipped = true
		result.Delivered = false
		deliveredCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "skipped")))
		return result, nil
	}

	payload, err := json.Marshal(notificationPayload{
		UserID:       input.UserID,
		ReminderText: input.Text,
		DateISO:      input.DateISO,
		Fingerprint:  input.Fingerprint,
	})
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError("marshal notification payload", "encoding", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", input.DeliveryURL, bytes.NewReader(payload))
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError("build delivery request", "request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: deliveryHTTPTimeout}
	resp, err := client.Do(req)
	if err != nil {
		deliveryErrorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "network")))
		return nil, fmt.Errorf("deliver notification: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	result.StatusCode = resp.StatusCode

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		result.Delivered = true
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		deliveryErrorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "client_error")))
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("delivery rejected (%d): %s", resp.StatusCode, string(body)), "delivery", nil)
	default:
		deliveryErrorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "server_error")))
		return nil, fmt.Errorf("delivery endpoint error (%d): %s", resp.StatusCode, string(body))
	}

	activityDuration.Record(ctx, time.Since(start).Seconds())
	deliveredCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "delivered")))

	logger.Info("Reminder delivered",
		"fingerprint", input.Fingerprint,
		"user_id", input.UserID,
		"status", resp.StatusCode)

	return result, nil
}
