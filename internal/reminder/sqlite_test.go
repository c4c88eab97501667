package reminder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fyrsmithlabs/remindd/internal/config"
)

func newTestSQLiteStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reminders.db")
	store, err := NewSQLiteStore(config.StoreConfig{Path: path})
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

// TestNewSQLiteStore tests database creation, WAL mode, and schema.
func TestNewSQLiteStore(t *testing.T) {
	store, _ := newTestSQLiteStore(t)

	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}

	var journalMode string
	if err := store.db.Raw("PRAGMA journal_mode").Scan(&journalMode).Error; err != nil {
		t.Fatalf("query journal_mode failed: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("expected WAL mode, got %q", journalMode)
	}

	if !store.db.Migrator().HasTable("reminders") {
		t.Error("reminders table does not exist")
	}
}

// TestSQLiteStoreCreateIfAbsent tests the idempotent write path against SQLite.
func TestSQLiteStoreCreateIfAbsent(t *testing.T) {
	store, _ := newTestSQLiteStore(t)
	ctx := context.Background()

	stored, created, err := store.CreateIfAbsent(ctx, sampleReminder())
	if err != nil {
		t.Fatalf("CreateIfAbsent() error = %v", err)
	}
	if !created {
		t.Error("created = false on first insert, want true")
	}
	if stored.CreatedAt.IsZero() {
		t.Error("CreatedAt not set on insert")
	}

	duplicate := sampleReminder()
	duplicate.CreatedAt = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	again, created, err := store.CreateIfAbsent(ctx, duplicate)
	if err != nil {
		t.Fatalf("CreateIfAbsent() second call error = %v", err)
	}
	if created {
		t.Error("created = true on duplicate, want false")
	}
	if !again.CreatedAt.Equal(stored.CreatedAt) {
		t.Errorf("CreatedAt changed on duplicate: %v != %v", again.CreatedAt, stored.CreatedAt)
	}
}

// TestSQLiteStorePersistsAcrossReopen tests that reminders survive reopen.
func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminders.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(config.StoreConfig{Path: path})
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	r := sampleReminder()
	if _, _, err := store.CreateIfAbsent(ctx, r); err != nil {
		t.Fatalf("CreateIfAbsent() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := NewSQLiteStore(config.StoreConfig{Path: path})
	if err != nil {
		t.Fatalf("NewSQLiteStore reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, r.Fingerprint)
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if got.Text != r.Text {
		t.Errorf("Text = %q, want %q", got.Text, r.Text)
	}
}

// TestSQLiteStoreGetMissing tests the not-found sentinel.
func TestSQLiteStoreGetMissing(t *testing.T) {
	store, _ := newTestSQLiteStore(t)

	if _, err := store.Get(context.Background(), "no-such-fingerprint"); err != ErrNotFound {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

// TestSQLiteStoreListByUser tests per-user listing against SQLite.
func TestSQLiteStoreListByUser(t *testing.T) {
	store, _ := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2025, 8, 11, 10, 0, 0, 0, time.UTC)
	for i, text := range []string{"water the plants", "renew the passport", "call the bank"} {
		r := &Reminder{
			Fingerprint: Fingerprint("u1", "2025-08-15", text),
			UserID:      "u1",
			DateISO:     "2025-08-15",
			Text:        text,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		if _, _, err := store.CreateIfAbsent(ctx, r); err != nil {
			t.Fatalf("CreateIfAbsent() error = %v", err)
		}
	}

	reminders, err := store.ListByUser(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(reminders) != 3 {
		t.Fatalf("ListByUser() count = %d, want 3", len(reminders))
	}
	if reminders[0].Text != "call the bank" {
		t.Errorf("newest first: got %q", reminders[0].Text)
	}

	none, err := store.ListByUser(ctx, "nobody", 0)
	if err != nil {
		t.Fatalf("ListByUser(nobody) error = %v", err)
	}
	if len(none) != 0 {
		t.Errorf("ListByUser(nobody) count = %d, want 0", len(none))
	}
}

// TestExpandHome tests tilde expansion in store paths.
func TestExpandHome(t *testing.T) {
	got, err := expandHome("/var/lib/remindd/reminders.db")
	if err != nil {
		t.Fatalf("expandHome() error = %v", err)
	}
	if got != "/var/lib/remindd/reminders.db" {
		t.Errorf("absolute path changed: %q", got)
	}

	expanded, err := expandHome("~/.local/share/remindd/reminders.db")
	if err != nil {
		t.Fatalf("expandHome(~) error = %v", err)
	}
	if expanded == "~/.local/share/remindd/reminders.db" {
		t.Error("tilde not expanded")
	}
	if filepath.Base(expanded) != "reminders.db" {
		t.Errorf("unexpected expansion: %q", expanded)
	}
}
