package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/remindd/internal/commitment"
	"github.com/fyrsmithlabs/remindd/internal/config"
	"github.com/fyrsmithlabs/remindd/internal/conversation"
	"github.com/fyrsmithlabs/remindd/internal/pipeline"
	"github.com/fyrsmithlabs/remindd/internal/reminder"
)

func testConfig() config.ServerConfig {
	return config.ServerConfig{
		Host:            "127.0.0.1",
		Port:            0,
		ShutdownTimeout: config.Duration(2 * time.Second),
	}
}

// newTestServer wires a server against the keyword analyzer and an
// in-memory store, with scheduling disabled.
func newTestServer(t *testing.T, cfg config.ServerConfig) (*Server, *reminder.MemoryStore) {
	t.Helper()

	store := reminder.NewMemoryStore()
	orch := pipeline.NewOrchestrator(commitment.NewKeywordAnalyzer(), store, nil)
	return NewServer(cfg, orch, store, nil), store
}

func doRequest(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func messagePayload(id, content string) string {
	return fmt.Sprintf(`{"id":%q,"session_id":"s1","user_id":"u1","role":"user","content":%q,"created_at":"2025-08-10T09:30:00Z"}`, id, content)
}

func TestNewServer(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	if srv == nil {
		t.Fatal("NewServer() returned nil")
	}
	if srv.Echo() == nil {
		t.Fatal("Echo() returned nil")
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	rec := doRequest(srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding health response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want %q", resp.Status, "ok")
	}
	if resp.Service != "remindd" {
		t.Errorf("service = %q, want %q", resp.Service, "remindd")
	}
}

func TestReadyEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	rec := doRequest(srv, http.MethodGet, "/ready", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /ready status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding ready response: %v", err)
	}
	if resp.Status != "ready" {
		t.Errorf("status = %q, want %q", resp.Status, "ready")
	}
}

type failingPingStore struct {
	reminder.Store
}

func (f *failingPingStore) Ping(ctx context.Context) error {
	return fmt.Errorf("backend offline")
}

func TestReadyEndpointDegraded(t *testing.T) {
	store := &failingPingStore{Store: reminder.NewMemoryStore()}
	orch := pipeline.NewOrchestrator(commitment.NewKeywordAnalyzer(), store, nil)
	srv := NewServer(testConfig(), orch, store, nil)

	rec := doRequest(srv, http.MethodGet, "/ready", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("GET /ready status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding ready response: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want %q", resp.Status, "degraded")
	}
	if resp.Error == "" {
		t.Error("degraded response should carry the ping error")
	}
}

func TestIngestMessageCreatesReminder(t *testing.T) {
	srv, store := newTestServer(t, testConfig())

	payload := messagePayload("m1", "I will go to the gym on 2025-08-15")

	rec := doRequest(srv, http.MethodPost, "/v1/messages", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /v1/messages status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp processResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding process response: %v", err)
	}
	if resp.State != pipeline.StateReminderCreated {
		t.Errorf("state = %q, want %q", resp.State, pipeline.StateReminderCreated)
	}
	if resp.Reminder == nil {
		t.Fatal("response missing reminder")
	}
	if resp.Reminder.DateISO != "2025-08-15" {
		t.Errorf("reminder date = %q, want %q", resp.Reminder.DateISO, "2025-08-15")
	}
	if store.Len() != 1 {
		t.Errorf("store holds %d reminders, want 1", store.Len())
	}

	// The same payload again resolves to the existing reminder.
	rec = doRequest(srv, http.MethodPost, "/v1/messages", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat POST status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding repeat response: %v", err)
	}
	if resp.State != pipeline.StateReminderExisting {
		t.Errorf("repeat state = %q, want %q", resp.State, pipeline.StateReminderExisting)
	}
	if store.Len() != 1 {
		t.Errorf("store holds %d reminders after repeat, want 1", store.Len())
	}
}

func TestIngestFiltersNonUserMessages(t *testing.T) {
	srv, store := newTestServer(t, testConfig())

	payload := `{"id":"m1","user_id":"u1","role":"assistant","content":"I will check on 2025-08-15"}`

	rec := doRequest(srv, http.MethodPost, "/v1/messages", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /v1/messages status = %d", rec.Code)
	}

	var resp processResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding process response: %v", err)
	}
	if resp.State != pipeline.StateFilteredOut {
		t.Errorf("state = %q, want %q", resp.State, pipeline.StateFilteredOut)
	}
	if store.Len() != 0 {
		t.Errorf("store holds %d reminders, want 0", store.Len())
	}
}

func TestIngestRejectsInvalidPayload(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	tests := []struct {
		name string
		body string
	}{
		{"not json", "this is not json"},
		{"missing user_id", `{"content":"I will call tomorrow"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(srv, http.MethodPost, "/v1/messages", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

type failingProcessor struct{}

func (failingProcessor) Process(ctx context.Context, msg *conversation.InboundMessage) (*pipeline.Outcome, error) {
	return nil, fmt.Errorf("analyzer offline")
}

func TestIngestProcessingFailureReturns500(t *testing.T) {
	srv := NewServer(testConfig(), failingProcessor{}, reminder.NewMemoryStore(), nil)

	rec := doRequest(srv, http.MethodPost, "/v1/messages", messagePayload("m1", "I will call on 2025-08-15"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func seedReminder(t *testing.T, store reminder.Store, userID, dateISO, text string) *reminder.Reminder {
	t.Helper()

	stored, _, err := store.CreateIfAbsent(context.Background(), &reminder.Reminder{
		Fingerprint: reminder.Fingerprint(userID, dateISO, text),
		UserID:      userID,
		DateISO:     dateISO,
		Text:        text,
		Confidence:  0.9,
	})
	if err != nil {
		t.Fatalf("seeding reminder: %v", err)
	}
	return stored
}

func TestListReminders(t *testing.T) {
	srv, store := newTestServer(t, testConfig())

	seedReminder(t, store, "u1", "2025-09-01", "review the budget")
	seedReminder(t, store, "u1", "2025-09-02", "send the report")
	seedReminder(t, store, "u2", "2025-09-03", "book flights")

	rec := doRequest(srv, http.MethodGet, "/v1/reminders?user_id=u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /v1/reminders status = %d", rec.Code)
	}

	var resp listResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding list response: %v", err)
	}
	if resp.Count != 2 {
		t.Errorf("count = %d, want 2", resp.Count)
	}
	for _, rem := range resp.Reminders {
		if rem.UserID != "u1" {
			t.Errorf("listed reminder for user %q, want u1", rem.UserID)
		}
	}

	rec = doRequest(srv, http.MethodGet, "/v1/reminders?user_id=u1&limit=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET with limit status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding limited response: %v", err)
	}
	if resp.Count != 1 {
		t.Errorf("limited count = %d, want 1", resp.Count)
	}
}

func TestListRemindersValidation(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	tests := []struct {
		name   string
		target string
	}{
		{"missing user_id", "/v1/reminders"},
		{"non-numeric limit", "/v1/reminders?user_id=u1&limit=abc"},
		{"zero limit", "/v1/reminders?user_id=u1&limit=0"},
		{"negative limit", "/v1/reminders?user_id=u1&limit=-5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(srv, http.MethodGet, tt.target, "")
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestGetReminder(t *testing.T) {
	srv, store := newTestServer(t, testConfig())

	stored := seedReminder(t, store, "u1", "2025-09-01", "review the budget")

	rec := doRequest(srv, http.MethodGet, "/v1/reminders/"+stored.Fingerprint, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /v1/reminders/{fp} status = %d", rec.Code)
	}

	var rem reminder.Reminder
	if err := json.Unmarshal(rec.Body.Bytes(), &rem); err != nil {
		t.Fatalf("decoding reminder: %v", err)
	}
	if rem.Fingerprint != stored.Fingerprint {
		t.Errorf("fingerprint = %q, want %q", rem.Fingerprint, stored.Fingerprint)
	}

	rec = doRequest(srv, http.MethodGet, "/v1/reminders/no-such-fingerprint", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET missing reminder status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRateLimitOnAPIGroup(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, RPS: 1, Burst: 2}
	srv, store := newTestServer(t, cfg)

	seedReminder(t, store, "u1", "2025-09-01", "review the budget")

	for i := 0; i < 2; i++ {
		rec := doRequest(srv, http.MethodGet, "/v1/reminders?user_id=u1", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want %d", i+1, rec.Code, http.StatusOK)
		}
	}

	rec := doRequest(srv, http.MethodGet, "/v1/reminders?user_id=u1", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("burst-exceeding request status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}

	// Probes are never rate limited.
	rec = doRequest(srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("GET /health status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestServerGracefulShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.Port = 19184

	srv, _ := newTestServer(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	// Wait for the listener to come up.
	time.Sleep(100 * time.Millisecond)

	resp, err := http.Get("http://127.0.0.1:19184/health")
	if err != nil {
		t.Fatalf("server not running: %v", err)
	}
	resp.Body.Close()

	cancel()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}
