package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/shsh-practice/internal/domain"
	"github.com/ashureev/shsh-practice/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500

	writeRetries   = 3
	writeBaseDelay = 50 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS activity_events (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		challenge_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		elapsed_ms INTEGER NOT NULL DEFAULT 0,
		detail TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_activity_user_created ON activity_events(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_activity_created ON activity_events(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RecordEvent appends an activity event, retrying while SQLite is busy.
func (s *SQLiteStore) RecordEvent(ctx context.Context, event *domain.ActivityEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	query := `
	INSERT INTO activity_events (id, user_id, challenge_id, session_id, kind, elapsed_ms, detail, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var detail interface{}
	if event.Detail != "" {
		detail = event.Detail
	}

	err := shared.RetryOnConflict(ctx, writeRetries, writeBaseDelay, "record_event", func() error {
		_, err := s.db.ExecContext(ctx, query,
			event.ID, event.UserID, event.ChallengeID, event.SessionID,
			string(event.Kind), event.ElapsedMs, detail, event.CreatedAt.UnixMilli(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert activity event: %w", err)
	}
	return nil
}

// ListEvents returns up to limit events, newest first.
func (s *SQLiteStore) ListEvents(ctx context.Context, userID, challengeID string, limit int) ([]*domain.ActivityEvent, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := `
		SELECT id, user_id, challenge_id, session_id, kind, elapsed_ms, detail, created_at
		FROM activity_events WHERE user_id = ?`
	args := []interface{}{userID}
	if challengeID != "" {
		query += ` AND challenge_id = ?`
		args = append(args, challengeID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query activity events: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close activity rows", "error", closeErr)
		}
	}()

	events := make([]*domain.ActivityEvent, 0)
	for rows.Next() {
		var (
			ev        domain.ActivityEvent
			kind      string
			detail    sql.NullString
			createdAt int64
		)
		if err := rows.Scan(
			&ev.ID, &ev.UserID, &ev.ChallengeID, &ev.SessionID,
			&kind, &ev.ElapsedMs, &detail, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan activity event: %w", err)
		}
		ev.Kind = domain.ActivityKind(kind)
		ev.Detail = detail.String
		ev.CreatedAt = time.UnixMilli(createdAt)
		events = append(events, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity events: %w", err)
	}

	return events, nil
}

// CleanupOlderThan removes events older than ttl.
func (s *SQLiteStore) CleanupOlderThan(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).UnixMilli()
	var deleted int64
	err := shared.RetryOnConflict(ctx, writeRetries, writeBaseDelay, "cleanup_events", func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM activity_events WHERE created_at < ?`, threshold)
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("cleanup activity events: %w", err)
	}
	return deleted, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
