package schedule

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/remindd/internal/config"
	"github.com/fyrsmithlabs/remindd/internal/reminder"
)

func TestFireTime(t *testing.T) {
	tests := []struct {
		dateISO string
		want    time.Time
	}{
		{"2025-08-15", time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC)},
		{"2026-01-01", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"2028-02-29", time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		got, err := FireTime(tt.dateISO)
		if err != nil {
			t.Fatalf("FireTime(%q) error: %v", tt.dateISO, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("FireTime(%q) = %v, want %v", tt.dateISO, got, tt.want)
		}
		if got.Location() != time.UTC {
			t.Errorf("FireTime(%q) location = %v, want UTC", tt.dateISO, got.Location())
		}
	}
}

func TestFireTimeRejectsBadDates(t *testing.T) {
	for _, dateISO := range []string{
		"",
		"not-a-date",
		"2025-13-01",
		"2025-02-30",
		"08/15/2025",
		"2025-8-5",
	} {
		_, err := FireTime(dateISO)
		if err == nil {
			t.Errorf("FireTime(%q) succeeded, want error", dateISO)
			continue
		}
		if !errors.Is(err, ErrInvalidFireDate) {
			t.Errorf("FireTime(%q) error %v, want ErrInvalidFireDate", dateISO, err)
		}
	}
}

func TestWorkflowID(t *testing.T) {
	got := WorkflowID("abc123")
	if got != "reminder-notify-abc123" {
		t.Errorf("WorkflowID = %q, want %q", got, "reminder-notify-abc123")
	}
}

func TestNoopSchedulerSchedule(t *testing.T) {
	s := NewNoopScheduler(nil)
	defer s.Close()

	rem := &reminder.Reminder{
		Fingerprint: reminder.Fingerprint("u1", "2025-08-15", "go to the gym"),
		UserID:      "u1",
		DateISO:     "2025-08-15",
		Text:        "go to the gym",
	}

	taskID, err := s.Schedule(context.Background(), rem)
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if !strings.HasPrefix(taskID, "reminder-notify-") {
		t.Errorf("task ID %q missing workflow prefix", taskID)
	}
	if !strings.HasSuffix(taskID, rem.Fingerprint) {
		t.Errorf("task ID %q not derived from fingerprint %q", taskID, rem.Fingerprint)
	}

	again, err := s.Schedule(context.Background(), rem)
	if err != nil {
		t.Fatalf("second Schedule error: %v", err)
	}
	if again != taskID {
		t.Errorf("task ID changed between calls: %q then %q", taskID, again)
	}
}

func TestNoopSchedulerRejectsBadDate(t *testing.T) {
	s := NewNoopScheduler(nil)
	defer s.Close()

	rem := &reminder.Reminder{
		Fingerprint: "abc123",
		UserID:      "u1",
		DateISO:     "someday",
		Text:        "go to the gym",
	}

	if _, err := s.Schedule(context.Background(), rem); !errors.Is(err, ErrInvalidFireDate) {
		t.Errorf("Schedule error %v, want ErrInvalidFireDate", err)
	}
}

func TestNewSchedulerSkipEnqueue(t *testing.T) {
	s, err := NewScheduler(config.SchedulerConfig{SkipEnqueue: true}, nil)
	if err != nil {
		t.Fatalf("NewScheduler error: %v", err)
	}
	defer s.Close()

	if _, ok := s.(*NoopScheduler); !ok {
		t.Errorf("NewScheduler with skip_enqueue = %T, want *NoopScheduler", s)
	}
	if s.Enabled() {
		t.Error("skip_enqueue scheduler reports Enabled")
	}
}
