package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	ingestUser    string
	ingestSession string
	listUser      string
	listLimit     int
)

func init() {
	ingestCmd.Flags().StringVar(&ingestUser, "user", "", "user the message belongs to (required)")
	ingestCmd.Flags().StringVar(&ingestSession, "session", "", "session the message belongs to")
	_ = ingestCmd.MarkFlagRequired("user")

	listCmd.Flags().StringVar(&listUser, "user", "", "user whose reminders to list (required)")
	listCmd.Flags().IntVar(&listLimit, "limit", 50, "maximum number of reminders to return")
	_ = listCmd.MarkFlagRequired("user")
}

// ingestCmd submits a message to the daemon for commitment analysis
var ingestCmd = &cobra.Command{
	Use:   "ingest [text]",
	Short: "Submit a conversation message for commitment analysis",
	Long: `Submit a conversation message to the remindd daemon. The daemon runs
the full pipeline and reports where the message terminated: filtered
out, no commitment, reminder created, or notification scheduled.

Examples:
  # Submit a message
  remindctl ingest --user alice "I will call the dentist on 2025-09-01"

  # Submit from stdin
  cat message.txt | remindctl ingest --user alice -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

// listCmd lists stored reminders for a user
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored reminders for a user",
	Long: `List reminders the daemon has stored for a user, most recent first.

Examples:
  # List reminders
  remindctl list --user alice

  # List more of them
  remindctl list --user alice --limit 200`,
	RunE: runList,
}

// IngestRequest matches the wire message accepted by POST /v1/messages
type IngestRequest struct {
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
}

// ReminderRecord matches the reminder JSON served by the daemon
type ReminderRecord struct {
	Fingerprint string  `json:"fingerprint"`
	UserID      string  `json:"user_id"`
	DateISO     string  `json:"date_iso"`
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	CreatedAt   string  `json:"created_at"`
}

// ProcessResponse matches internal/server/server.go processResponse
type ProcessResponse struct {
	State         string          `json:"state"`
	Reminder      *ReminderRecord `json:"reminder,omitempty"`
	TaskID        string          `json:"task_id,omitempty"`
	ScheduleError string          `json:"schedule_error,omitempty"`
}

// ListResponse matches internal/server/server.go listResponse
type ListResponse struct {
	Reminders []ReminderRecord `json:"reminders"`
	Count     int              `json:"count"`
}

// runIngest handles the ingest command
func runIngest(cmd *cobra.Command, args []string) error {
	content, err := readTextInput(args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("no message content to submit")
	}

	reqBody := IngestRequest{
		SessionID: ingestSession,
		UserID:    ingestUser,
		Role:      "user",
		Content:   content,
	}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	target := fmt.Sprintf("%s/v1/messages", serverURL)
	httpReq, err := http.NewRequest("POST", target, bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var procResp ProcessResponse
	if err := json.NewDecoder(resp.Body).Decode(&procResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("State: %s\n", procResp.State)
	if procResp.Reminder != nil {
		fmt.Printf("Reminder: %s  %s\n", procResp.Reminder.DateISO, procResp.Reminder.Text)
		fmt.Printf("Fingerprint: %s\n", procResp.Reminder.Fingerprint)
	}
	if procResp.TaskID != "" {
		fmt.Printf("Notification Task: %s\n", procResp.TaskID)
	}
	if procResp.ScheduleError != "" {
		fmt.Fprintf(os.Stderr, "[remindctl] Scheduling failed, reminder kept: %s\n", procResp.ScheduleError)
	}

	return nil
}

// runList handles the list command
func runList(cmd *cobra.Command, args []string) error {
	target := fmt.Sprintf("%s/v1/reminders?user_id=%s&limit=%d",
		serverURL, url.QueryEscape(listUser), listLimit)

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var listResp ListResponse
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if listResp.Count == 0 {
		fmt.Printf("No reminders stored for %s.\n", listUser)
		return nil
	}

	fmt.Printf("%d reminder(s) for %s:\n\n", listResp.Count, listUser)
	for _, rem := range listResp.Reminders {
		fmt.Printf("  %s  %-50q  %.12s\n", rem.DateISO, rem.Text, rem.Fingerprint)
	}

	return nil
}
