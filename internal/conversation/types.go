// Package conversation defines the inbound message model for the reminder
// pipeline. It decodes single-message payloads from the HTTP and NATS intake
// surfaces and JSONL batch files from the spool directory.
package conversation

import (
	"strings"
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// InboundMessage is a single conversation message entering the pipeline.
type InboundMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id,omitempty"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Eligible reports whether the message should be analyzed at all.
// Only user-authored messages with non-empty content qualify; everything
// else is filtered out before analysis.
func (m *InboundMessage) Eligible() bool {
	return m.Role == RoleUser && strings.TrimSpace(m.Content) != ""
}

// TrimmedContent returns the message content with surrounding whitespace
// removed. Analysis and fingerprinting operate on this form.
func (m *InboundMessage) TrimmedContent() string {
	return strings.TrimSpace(m.Content)
}
