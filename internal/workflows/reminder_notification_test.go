package workflows

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
)

// TestReminderNotificationWorkflow tests the delivery workflow.
func TestReminderNotificationWorkflow(t *testing.T) {
	input := ReminderNotificationInput{
		Fingerprint: "abc123",
		UserID:      "u1",
		Text:        "go to the gym",
		DateISO:     "2025-08-15",
		FireAt:      time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC),
		DeliveryURL: "https://notify.example/hook",
	}

	t.Run("delivers after timer fires", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()
		env.SetStartTime(time.Date(2025, 8, 11, 9, 0, 0, 0, time.UTC))

		env.RegisterWorkflow(ReminderNotificationWorkflow)
		env.OnActivity(DeliverNotificationActivity, mock.Anything, mock.Anything).
			Return(&DeliverNotificationResult{Delivered: true, StatusCode: 200}, nil)

		env.ExecuteWorkflow(ReminderNotificationWorkflow, input)

		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())

		var result ReminderNotificationResult
		require.NoError(t, env.GetWorkflowResult(&result))
		assert.True(t, result.Delivered)
		assert.False(t, result.Skipped)
		assert.False(t, result.DeliveredAt.Before(input.FireAt),
			"delivered at %v, before fire instant %v", result.DeliveredAt, input.FireAt)
	})

	t.Run("fires immediately when fire instant has passed", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()
		env.SetStartTime(time.Date(2025, 8, 20, 9, 0, 0, 0, time.UTC))

		env.RegisterWorkflow(ReminderNotificationWorkflow)
		env.OnActivity(DeliverNotificationActivity, mock.Anything, mock.Anything).
			Return(&DeliverNotificationResult{Delivered: true, StatusCode: 200}, nil)

		env.ExecuteWorkflow(ReminderNotificationWorkflow, input)

		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())

		var result ReminderNotificationResult
		require.NoError(t, env.GetWorkflowResult(&result))
		assert.True(t, result.Delivered)
	})

	t.Run("delivery failure fails the workflow", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()
		env.SetStartTime(time.Date(2025, 8, 11, 9, 0, 0, 0, time.UTC))

		env.RegisterWorkflow(ReminderNotificationWorkflow)
		env.OnActivity(DeliverNotificationActivity, mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("endpoint unreachable"))

		env.ExecuteWorkflow(ReminderNotificationWorkflow, input)

		require.True(t, env.IsWorkflowCompleted())
		require.Error(t, env.GetWorkflowError())
	})

	t.Run("reports skipped delivery", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()
		env.SetStartTime(time.Date(2025, 8, 11, 9, 0, 0, 0, time.UTC))

		noURL := input
		noURL.DeliveryURL = ""

		env.RegisterWorkflow(ReminderNotificationWorkflow)
		env.OnActivity(DeliverNotificationActivity, mock.Anything, mock.Anything).
			Return(&DeliverNotificationResult{Skipped: true}, nil)

		env.ExecuteWorkflow(ReminderNotificationWorkflow, noURL)

		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())

		var result ReminderNotificationResult
		require.NoError(t, env.GetWorkflowResult(&result))
		assert.True(t, result.Skipped)
		assert.False(t, result.Delivered)
	})
}

// TestDeliverNotificationActivity tests the delivery activity against a mock endpoint.
func TestDeliverNotificationActivity(t *testing.T) {
	t.Run("posts payload and succeeds", func(t *testing.T) {
		var received notificationPayload
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestActivityEnvironment()
		env.RegisterActivity(DeliverNotificationActivity)

		val, err := env.ExecuteActivity(DeliverNotificationActivity, DeliverNotificationInput{
			Fingerprint: "abc123",
			UserID:      "u1",
			Text:        "go to the gym",
			DateISO:     "2025-08-15",
			DeliveryURL: server.URL,
		})
		require.NoError(t, err)

		var result DeliverNotificationResult
		require.NoError(t, val.Get(&result))
		assert.True(t, result.Delivered)
		assert.Equal(t, http.StatusOK, result.StatusCode)

		assert.Equal(t, "u1", received.UserID)
		assert.Equal(t, "go to the gym", received.ReminderText)
		assert.Equal(t, "2025-08-15", received.DateISO)
		assert.Equal(t, "abc123", received.Fingerprint)
	})

	t.Run("client error is permanent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unknown user", http.StatusBadRequest)
		}))
		defer server.Close()

		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestActivityEnvironment()
		env.RegisterActivity(DeliverNotificationActivity)

		_, err := env.ExecuteActivity(DeliverNotificationActivity, DeliverNotificationInput{
			Fingerprint: "abc123",
			UserID:      "u1",
			Text:        "go to the gym",
			DateISO:     "2025-08-15",
			DeliveryURL: server.URL,
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "delivery rejected")
	})

	t.Run("server error is retryable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "flaky", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestActivityEnvironment()
		env.RegisterActivity(DeliverNotificationActivity)

		_, err := env.ExecuteActivity(DeliverNotificationActivity, DeliverNotificationInput{
			Fingerprint: "abc123",
			UserID:      "u1",
			Text:        "go to the gym",
			DateISO:     "2025-08-15",
			DeliveryURL: server.URL,
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "delivery endpoint error")
	})

	t.Run("no delivery URL logs and skips", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestActivityEnvironment()
		env.RegisterActivity(DeliverNotificationActivity)

		val, err := env.ExecuteActivity(DeliverNotificationActivity, DeliverNotificationInput{
			Fingerprint: "abc123",
			UserID:      "u1",
			Text:        "go to the gym",
			DateISO:     "2025-08-15",
		})
		require.NoError(t, err)

		var result DeliverNotificationResult
		require.NoError(t, val.Get(&result))
		assert.True(t, result.Skipped)
		assert.False(t, result.Delivered)
	})
}
