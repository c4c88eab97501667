package reminder

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and the "memory" backend.
type MemoryStore struct {
	mu        sync.RWMutex
	reminders map[string]*Reminder
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reminders: make(map[string]*Reminder),
	}
}

// CreateIfAbsent stores the reminder unless its fingerprint exists.
func (s *MemoryStore) CreateIfAbsent(ctx context.Context, r *Reminder) (*Reminder, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.reminders[r.Fingerprint]; ok {
		return copyReminder(existing), false, nil
	}

	stored := copyReminder(r)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.reminders[r.Fingerprint] = stored
	return copyReminder(stored), true, nil
}

// Get retrieves a reminder by fingerprint.
func (s *MemoryStore) Get(ctx context.Context, fingerprint string) (*Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reminders[fingerprint]
	if !ok {
		return nil, ErrNotFound
	}
	return copyReminder(r), nil
}

// ListByUser returns a user's reminders, newest first.
func (s *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var reminders []*Reminder
	for _, r := range s.reminders {
		if r.UserID == userID {
			reminders = append(reminders, copyReminder(r))
		}
	}

	sort.Slice(reminders, func(i, j int) bool {
		return reminders[i].CreatedAt.After(reminders[j].CreatedAt)
	})

	if limit > 0 && len(reminders) > limit {
		reminders = reminders[:limit]
	}
	return reminders, nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// Len reports how many reminders are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reminders)
}

func copyReminder(r *Reminder) *Reminder {
	cp := *r
	return &cp
}

var _ Store = (*MemoryStore)(nil)
