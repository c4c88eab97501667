package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/fyrsmithlabs/remindd/internal/commitment"
	"github.com/fyrsmithlabs/remindd/internal/conversation"
	"github.com/fyrsmithlabs/remindd/internal/reminder"
	"github.com/fyrsmithlabs/remindd/internal/schedule"
)

type stubAnalyzer struct {
	result commitment.Result
	err    error
	calls  int
}

func (s *stubAnalyzer) Analyze(ctx context.Context, text string, reference time.Time) (commitment.Result, error) {
	s.calls++
	if s.err != nil {
		return commitment.Result{}, s.err
	}
	return s.result, nil
}

func (s *stubAnalyzer) Available() bool { return true }

// fakeScheduler validates the fire date exactly like the real scheduler
// before touching its enqueue state.
type fakeScheduler struct {
	err       error
	scheduled []*reminder.Reminder
}

func (f *fakeScheduler) Schedule(ctx context.Context, rem *reminder.Reminder) (string, error) {
	if _, err := schedule.FireTime(rem.DateISO); err != nil {
		return "", err
	}
	if f.err != nil {
		return "", f.err
	}
	f.scheduled = append(f.scheduled, rem)
	return schedule.WorkflowID(rem.Fingerprint), nil
}

func (f *fakeScheduler) Enabled() bool { return true }

func (f *fakeScheduler) Close() {}

type failingStore struct {
	reminder.Store
	err error
}

func (f *failingStore) CreateIfAbsent(ctx context.Context, rem *reminder.Reminder) (*reminder.Reminder, bool, error) {
	return nil, false, f.err
}

func userMessage(id, content string) *conversation.InboundMessage {
	return &conversation.InboundMessage{
		ID:        id,
		SessionID: "s1",
		UserID:    "u1",
		Role:      conversation.RoleUser,
		Content:   content,
		CreatedAt: time.Date(2025, 8, 10, 9, 30, 0, 0, time.UTC),
	}
}

func TestProcessSimpleCommitment(t *testing.T) {
	store := reminder.NewMemoryStore()
	sched := &fakeScheduler{}
	orch := NewOrchestrator(commitment.NewKeywordAnalyzer(), store, sched)

	out, err := orch.Process(context.Background(), userMessage("m1", "I will go to the gym on 2025-08-15"))
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.Equal(t, StateNotificationScheduled, out.State)
	require.NotNil(t, out.Reminder)
	assert.Equal(t, "2025-08-15", out.Reminder.DateISO)
	assert.Contains(t, out.Reminder.Text, "go to the gym")
	assert.Equal(t, "u1", out.Reminder.UserID)
	assert.Equal(t, "s1", out.Reminder.SessionID)
	assert.Equal(t, "m1", out.Reminder.MessageID)
	assert.True(t, strings.HasPrefix(out.TaskID, "reminder-notify-"))

	assert.Equal(t, 1, store.Len())
	require.Len(t, sched.scheduled, 1)
	assert.Equal(t, out.Reminder.Fingerprint, sched.scheduled[0].Fingerprint)
}

func TestProcessNoCommitment(t *testing.T) {
	store := reminder.NewMemoryStore()
	sched := &fakeScheduler{}
	orch := NewOrchestrator(commitment.NewKeywordAnalyzer(), store, sched)

	out, err := orch.Process(context.Background(), userMessage("m1", "I had a good day today"))
	require.NoError(t, err)

	assert.Equal(t, StateNoCommitment, out.State)
	assert.Nil(t, out.Reminder)
	assert.Equal(t, 0, store.Len())
	assert.Empty(t, sched.scheduled)
}

func TestProcessPastDateRejected(t *testing.T) {
	store := reminder.NewMemoryStore()
	orch := NewOrchestrator(commitment.NewKeywordAnalyzer(), store, &fakeScheduler{})

	out, err := orch.Process(context.Background(), userMessage("m1", "I will go to the gym on 2020-01-01"))
	require.NoError(t, err)

	assert.Equal(t, StateNoCommitment, out.State)
	assert.Equal(t, 0, store.Len())
}

func TestProcessFiltersIneligibleMessages(t *testing.T) {
	tests := []struct {
		name string
		msg  *conversation.InboundMessage
	}{
		{
			name: "agent role",
			msg: &conversation.InboundMessage{
				ID:      "m1",
				UserID:  "u1",
				Role:    conversation.RoleAgent,
				Content: "I will go to the gym on 2025-08-15",
			},
		},
		{
			name: "blank content",
			msg: &conversation.InboundMessage{
				ID:      "m2",
				UserID:  "u1",
				Role:    conversation.RoleUser,
				Content: "   \n  ",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := &stubAnalyzer{}
			store := reminder.NewMemoryStore()
			orch := NewOrchestrator(analyzer, store, &fakeScheduler{})

			out, err := orch.Process(context.Background(), tt.msg)
			require.NoError(t, err)

			assert.Equal(t, StateFilteredOut, out.State)
			assert.Equal(t, 0, analyzer.calls, "filtered message must never reach the analyzer")
			assert.Equal(t, 0, store.Len())
		})
	}
}

func TestProcessDuplicateAcrossMessages(t *testing.T) {
	store := reminder.NewMemoryStore()
	sched := &fakeScheduler{}
	orch := NewOrchestrator(commitment.NewKeywordAnalyzer(), store, sched)

	first, err := orch.Process(context.Background(), userMessage("m1", "I will go to the gym on 2025-08-15"))
	require.NoError(t, err)
	require.Equal(t, StateNotificationScheduled, first.State)

	second, err := orch.Process(context.Background(), userMessage("m2", "I will go to the gym on 2025-08-15"))
	require.NoError(t, err)

	assert.Equal(t, StateReminderExisting, second.State)
	require.NotNil(t, second.Reminder)
	assert.Equal(t, first.Reminder.Fingerprint, second.Reminder.Fingerprint)
	assert.Equal(t, "m1", second.Reminder.MessageID, "original row must survive the duplicate")

	assert.Equal(t, 1, store.Len())
	assert.Len(t, sched.scheduled, 1, "duplicate must not schedule again")
}

func TestProcessAnalyzerFailureIsFatal(t *testing.T) {
	analyzer := &stubAnalyzer{err: errors.New("model exploded")}
	store := reminder.NewMemoryStore()
	orch := NewOrchestrator(analyzer, store, &fakeScheduler{})

	out, err := orch.Process(context.Background(), userMessage("m1", "I will go to the gym on 2025-08-15"))
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Contains(t, err.Error(), "failed to analyze")
	assert.Equal(t, 0, store.Len())
}

func TestProcessStoreFailureIsFatal(t *testing.T) {
	store := &failingStore{err: errors.New("disk full")}
	orch := NewOrchestrator(commitment.NewKeywordAnalyzer(), store, &fakeScheduler{})

	out, err := orch.Process(context.Background(), userMessage("m1", "I will go to the gym on 2025-08-15"))
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Contains(t, err.Error(), "failed to store reminder")
}

func TestProcessSchedulingFailureKeepsReminder(t *testing.T) {
	store := reminder.NewMemoryStore()
	sched := &fakeScheduler{err: errors.New("task queue unavailable")}
	orch := NewOrchestrator(commitment.NewKeywordAnalyzer(), store, sched)

	out, err := orch.Process(context.Background(), userMessage("m1", "I will go to the gym on 2025-08-15"))
	require.NoError(t, err, "enqueue failure must not fail the event")

	assert.Equal(t, StateNotificationFailed, out.State)
	require.NotNil(t, out.Reminder)
	require.Error(t, out.ScheduleErr)
	assert.Contains(t, out.ScheduleErr.Error(), "task queue unavailable")
	assert.Equal(t, 1, store.Len(), "reminder survives the enqueue failure")
	assert.Empty(t, out.TaskID)
}

func TestProcessInvalidDateFatalBeforeEnqueue(t *testing.T) {
	analyzer := &stubAnalyzer{result: commitment.Result{
		HasCommitment: true,
		Commitment: &commitment.Commitment{
			Text:       "go to the gym",
			DateISO:    "not-a-date",
			Confidence: 0.9,
		},
	}}
	store := reminder.NewMemoryStore()
	sched := &fakeScheduler{}
	orch := NewOrchestrator(analyzer, store, sched)

	out, err := orch.Process(context.Background(), userMessage("m1", "whatever"))
	require.Error(t, err)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, schedule.ErrInvalidFireDate)
	assert.Empty(t, sched.scheduled, "nothing may be enqueued for an invalid date")
}

func TestProcessSchedulingDisabled(t *testing.T) {
	t.Run("noop scheduler", func(t *testing.T) {
		store := reminder.NewMemoryStore()
		orch := NewOrchestrator(commitment.NewKeywordAnalyzer(), store, schedule.NewNoopScheduler(nil))

		out, err := orch.Process(context.Background(), userMessage("m1", "I will go to the gym on 2025-08-15"))
		require.NoError(t, err)

		assert.Equal(t, StateReminderCreated, out.State)
		require.NotNil(t, out.Reminder)
		assert.Empty(t, out.TaskID)
		assert.Equal(t, 1, store.Len())
	})

	t.Run("nil scheduler", func(t *testing.T) {
		store := reminder.NewMemoryStore()
		orch := NewOrchestrator(commitment.NewKeywordAnalyzer(), store, nil)

		out, err := orch.Process(context.Background(), userMessage("m1", "I will go to the gym on 2025-08-15"))
		require.NoError(t, err)

		assert.Equal(t, StateReminderCreated, out.State)
		assert.Equal(t, 1, store.Len())
	})
}

func TestProcessReferenceTime(t *testing.T) {
	t.Run("message timestamp anchors the future", func(t *testing.T) {
		store := reminder.NewMemoryStore()
		orch := NewOrchestrator(commitment.NewKeywordAnalyzer(), store, &fakeScheduler{})

		// Sent after the committed date; by the message's own clock the
		// date is already in the past.
		msg := userMessage("m1", "I will go to the gym on 2025-08-15")
		msg.CreatedAt = time.Date(2025, 8, 20, 9, 0, 0, 0, time.UTC)

		out, err := orch.Process(context.Background(), msg)
		require.NoError(t, err)
		assert.Equal(t, StateNoCommitment, out.State)
	})

	t.Run("missing timestamp falls back to the clock", func(t *testing.T) {
		store := reminder.NewMemoryStore()
		orch := NewOrchestrator(commitment.NewKeywordAnalyzer(), store, &fakeScheduler{})
		orch.now = func() time.Time { return time.Date(2025, 8, 10, 9, 0, 0, 0, time.UTC) }

		msg := userMessage("m1", "I will go to the gym on 2025-08-15")
		msg.CreatedAt = time.Time{}

		out, err := orch.Process(context.Background(), msg)
		require.NoError(t, err)
		assert.Equal(t, StateNotificationScheduled, out.State)
	})
}

func TestProcessEmitsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(provider)
	defer otel.SetTracerProvider(sdktrace.NewTracerProvider())

	store := reminder.NewMemoryStore()
	orch := NewOrchestrator(commitment.NewKeywordAnalyzer(), store, &fakeScheduler{})

	_, err := orch.Process(context.Background(), userMessage("m1", "I will go to the gym on 2025-08-15"))
	require.NoError(t, err)

	spans := recorder.Ended()
	require.NotEmpty(t, spans)

	var found bool
	for _, span := range spans {
		if span.Name() != "pipeline.process" {
			continue
		}
		found = true
		attrs := span.Attributes()
		var sawMessageID bool
		for _, attr := range attrs {
			if string(attr.Key) == "pipeline.message_id" {
				sawMessageID = true
				assert.Equal(t, "m1", attr.Value.AsString())
			}
		}
		assert.True(t, sawMessageID, "span should carry the message id")
	}
	assert.True(t, found, "expected a pipeline.process span")
}
