package reminder

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/fyrsmithlabs/remindd/internal/config"
)

// reminderRow is the reminders table schema.
type reminderRow struct {
	Fingerprint string    `gorm:"primaryKey;size:64"`
	UserID      string    `gorm:"index;not null"`
	DateISO     string    `gorm:"column:date_iso;index;not null"`
	Text        string    `gorm:"type:text;not null"`
	Confidence  float64   `gorm:"type:real"`
	SessionID   string    `gorm:"index"`
	MessageID   string
	CreatedAt   time.Time `gorm:"not null"`
}

func (reminderRow) TableName() string { return "reminders" }

// SQLiteStore persists reminders in a SQLite database via GORM.
type SQLiteStore struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

// NewSQLiteStore opens (creating if needed) the reminder database with
// WAL mode enabled for concurrent reads alongside the writer.
func NewSQLiteStore(cfg config.StoreConfig) (*SQLiteStore, error) {
	path, err := expandHome(cfg.Path)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, fmt.Errorf("store path required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	// Foreign keys enabled in the DSN; remaining pragmas set after open.
	dsn := path + "?_foreign_keys=ON"

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db, err := gorm.Open(sqlite.Dialector{Conn: sqlDB}, &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Silent),
		PrepareStmt: true,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("open gorm: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns)
	sqlDB.SetConnMaxLifetime(0)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := db.AutoMigrate(&reminderRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate reminders table: %w", err)
	}

	// WAL mode and busy timeout via raw SQL to avoid GORM transaction wrapping.
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("set synchronous mode: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db, sqlDB: sqlDB}, nil
}

// CreateIfAbsent inserts the reminder unless its fingerprint exists.
// On a duplicate the stored row is re-read and returned with created
// false; the original CreatedAt survives.
func (s *SQLiteStore) CreateIfAbsent(ctx context.Context, r *Reminder) (*Reminder, bool, error) {
	row := toRow(r)
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return nil, false, fmt.Errorf("create reminder: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		existing, err := s.Get(ctx, row.Fingerprint)
		if err != nil {
			return nil, false, fmt.Errorf("read existing reminder: %w", err)
		}
		return existing, false, nil
	}

	return fromRow(&row), true, nil
}

// Get retrieves a reminder by fingerprint.
func (s *SQLiteStore) Get(ctx context.Context, fingerprint string) (*Reminder, error) {
	var row reminderRow
	err := s.db.WithContext(ctx).First(&row, "fingerprint = ?", fingerprint).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	return fromRow(&row), nil
}

// ListByUser returns a user's reminders, newest first.
func (s *SQLiteStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Reminder, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []reminderRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}

	reminders := make([]*Reminder, 0, len(rows))
	for i := range rows {
		reminders = append(reminders, fromRow(&rows[i]))
	}
	return reminders, nil
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.sqlDB.Close()
}

func toRow(r *Reminder) reminderRow {
	return reminderRow{
		Fingerprint: r.Fingerprint,
		UserID:      r.UserID,
		DateISO:     r.DateISO,
		Text:        r.Text,
		Confidence:  r.Confidence,
		SessionID:   r.SessionID,
		MessageID:   r.MessageID,
		CreatedAt:   r.CreatedAt,
	}
}

func fromRow(row *reminderRow) *Reminder {
	return &Reminder{
		Fingerprint: row.Fingerprint,
		UserID:      row.UserID,
		DateISO:     row.DateISO,
		Text:        row.Text,
		Confidence:  row.Confidence,
		SessionID:   row.SessionID,
		MessageID:   row.MessageID,
		CreatedAt:   row.CreatedAt,
	}
}

// expandHome resolves a leading "~/" against the current user's home.
func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") && path != "~" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}

var _ Store = (*SQLiteStore)(nil)
