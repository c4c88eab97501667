package conversation

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// wireMessage is the raw envelope accepted on all intake surfaces.
type wireMessage struct {
	ID        string `json:"id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at,omitempty"`
}

// DecodeMessage parses a single message payload.
//
// Missing IDs are assigned, missing timestamps default to now, and the
// "assistant" role is normalized to RoleAgent. A payload without a user_id
// is rejected because reminders cannot be attributed without one.
func DecodeMessage(data []byte) (*InboundMessage, error) {
	var wm wireMessage
	if err := json.Unmarshal(data, &wm); err != nil {
		return nil, fmt.Errorf("decoding message: %w", err)
	}
	return fromWire(wm)
}

func fromWire(wm wireMessage) (*InboundMessage, error) {
	if strings.TrimSpace(wm.UserID) == "" {
		return nil, fmt.Errorf("message missing user_id")
	}

	id := wm.ID
	if id == "" {
		id = uuid.NewString()
	}

	role := Role(strings.ToLower(strings.TrimSpace(wm.Role)))
	if role == "assistant" {
		role = RoleAgent
	}

	createdAt := parseTimestamp(wm.CreatedAt)

	return &InboundMessage{
		ID:        id,
		SessionID: wm.SessionID,
		UserID:    wm.UserID,
		Role:      role,
		Content:   wm.Content,
		CreatedAt: createdAt,
	}, nil
}

// parseTimestamp accepts RFC3339 with or without fractional seconds.
// Unparseable or absent timestamps fall back to the current time.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Now().UTC()
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts
	}
	if ts, err := time.Parse("2006-01-02T15:04:05Z", s); err == nil {
		return ts
	}
	return time.Now().UTC()
}

// ParseError represents a parsing error at a specific line.
type ParseError struct {
	Line  int
	Error string
}

// ParseResult contains messages and any errors encountered during parsing.
type ParseResult struct {
	Messages   []*InboundMessage
	ErrorCount int
	Errors     []ParseError
}

// maxStoredErrors caps how many per-line errors a ParseResult retains.
const maxStoredErrors = 10

// ParseFile reads a JSONL spool file and extracts messages.
// Returns partial results on per-line errors rather than failing completely.
func ParseFile(path string) (*ParseResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening spool file: %w", err)
	}
	defer file.Close()

	result := &ParseResult{
		Messages: make([]*InboundMessage, 0),
		Errors:   make([]ParseError, 0),
	}
	scanner := bufio.NewScanner(file)

	// Increase buffer size for large messages
	const maxScanTokenSize = 10 * 1024 * 1024 // 10MB
	buf := make([]byte, maxScanTokenSize)
	scanner.Buffer(buf, maxScanTokenSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		var wm wireMessage
		if err := json.Unmarshal([]byte(line), &wm); err != nil {
			result.ErrorCount++
			if len(result.Errors) < maxStoredErrors {
				result.Errors = append(result.Errors, ParseError{
					Line:  lineNum,
					Error: fmt.Sprintf("JSON parse error: %v", err),
				})
			}
			continue
		}

		msg, err := fromWire(wm)
		if err != nil {
			result.ErrorCount++
			if len(result.Errors) < maxStoredErrors {
				result.Errors = append(result.Errors, ParseError{
					Line:  lineNum,
					Error: fmt.Sprintf("message error: %v", err),
				})
			}
			continue
		}

		result.Messages = append(result.Messages, msg)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning spool file: %w", err)
	}

	return result, nil
}
