// Package reminder persists commitment reminders keyed by a content
// fingerprint, so re-delivered or re-parsed messages never produce
// duplicate reminders.
package reminder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/remindd/internal/config"
)

// Reminder is one stored commitment.
type Reminder struct {
	// Fingerprint identifies the reminder. Two messages that yield the
	// same user, date, and text collapse into one reminder.
	Fingerprint string    `json:"fingerprint"`
	UserID      string    `json:"user_id"`
	DateISO     string    `json:"date_iso"`
	Text        string    `json:"text"`
	Confidence  float64   `json:"confidence"`
	SessionID   string    `json:"session_id,omitempty"`
	MessageID   string    `json:"message_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Fingerprint derives the identity of a reminder from its user, ISO date,
// and commitment text, joined with "-" and hashed with SHA-256. The full
// hex digest is returned.
func Fingerprint(userID, dateISO, text string) string {
	hash := sha256.Sum256([]byte(userID + "-" + dateISO + "-" + text))
	return hex.EncodeToString(hash[:])
}

// Store persists reminders.
//
// CreateIfAbsent is the write path the pipeline uses: when a reminder
// with the same fingerprint already exists, the stored row is returned
// untouched (its CreatedAt is never overwritten) and created reports
// false.
type Store interface {
	CreateIfAbsent(ctx context.Context, r *Reminder) (stored *Reminder, created bool, err error)
	Get(ctx context.Context, fingerprint string) (*Reminder, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*Reminder, error)
	Ping(ctx context.Context) error
	Close() error
}

// ErrNotFound is returned by Get when no reminder has the fingerprint.
var ErrNotFound = fmt.Errorf("reminder not found")

// NewStore creates a reminder store based on configuration.
func NewStore(cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "", "sqlite":
		return NewSQLiteStore(cfg)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}
