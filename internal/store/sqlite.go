package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/geochat/internal/domain"
	"github.com/ashureev/geochat/internal/shared"
	"github.com/samber/lo"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	historyMu sync.Mutex // Serializes history writes to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
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
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS credentials (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_sessions (
		chat_uuid TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		last_opened_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_sessions_opened ON chat_sessions(last_opened_at);
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

// GetCredential returns the stored value for name.
func (s *SQLiteStore) GetCredential(ctx context.Context, name string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM credentials WHERE name = ?`, name).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("scan credential row: %w", err)
	}
	return value, nil
}

// PutCredential creates or replaces the value stored under name.
func (s *SQLiteStore) PutCredential(ctx context.Context, name, value string) error {
	query := `
	INSERT INTO credentials (name, value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`

	return withRetry(ctx, "PutCredential", func() error {
		if _, err := s.db.ExecContext(ctx, query, name, value, time.Now().Unix()); err != nil {
			return fmt.Errorf("upsert credential: %w", err)
		}
		return nil
	})
}

// DeleteCredential removes the value stored under name.
func (s *SQLiteStore) DeleteCredential(ctx context.Context, name string) error {
	return withRetry(ctx, "DeleteCredential", func() error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE name = ?`, name); err != nil {
			return fmt.Errorf("delete credential: %w", err)
		}
		return nil
	})
}

// RecordSession remembers that a chat session was opened.
func (s *SQLiteStore) RecordSession(ctx context.Context, chatUUID string, openedAt time.Time) error {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	query := `
	INSERT INTO chat_sessions (chat_uuid, created_at, last_opened_at)
	VALUES (?, ?, ?)
	ON CONFLICT(chat_uuid) DO UPDATE SET
		last_opened_at = excluded.last_opened_at`

	ts := openedAt.UnixMilli()
	return withRetry(ctx, "RecordSession", func() error {
		if _, err := s.db.ExecContext(ctx, query, chatUUID, ts, ts); err != nil {
			return fmt.Errorf("upsert chat session: %w", err)
		}
		return nil
	})
}

type sessionRow struct {
	chatUUID     string
	createdAt    int64
	lastOpenedAt int64
}

// RecentSessions returns up to limit sessions, most recently opened first.
func (s *SQLiteStore) RecentSessions(ctx context.Context, limit int) ([]*domain.SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT chat_uuid, created_at, last_opened_at
		FROM chat_sessions ORDER BY last_opened_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close recent sessions rows", "error", closeErr)
		}
	}()

	var raw []sessionRow
	for rows.Next() {
		var r sessionRow
		if err := rows.Scan(&r.chatUUID, &r.createdAt, &r.lastOpenedAt); err != nil {
			return nil, fmt.Errorf("scan recent session row: %w", err)
		}
		raw = append(raw, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent sessions: %w", err)
	}

	return lo.Map(raw, func(r sessionRow, _ int) *domain.SessionRecord {
		return &domain.SessionRecord{
			ChatUUID:     r.chatUUID,
			CreatedAt:    time.UnixMilli(r.createdAt),
			LastOpenedAt: time.UnixMilli(r.lastOpenedAt),
		}
	}), nil
}

// PruneHistory removes sessions not opened within ttl.
func (s *SQLiteStore) PruneHistory(ctx context.Context, ttl time.Duration) (int64, error) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	threshold := time.Now().Add(-ttl).UnixMilli()
	result, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE last_opened_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("prune chat sessions: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// withRetry runs fn with exponential backoff while SQLite reports lock
// contention.
func withRetry(ctx context.Context, op string, fn func() error) error {
	maxRetries := 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		kind, conflict := shared.SQLiteConflict(err)
		if !conflict || i == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<i) // exponential backoff: 50ms, 100ms
		slog.Debug("SQLite contention, retrying", "op", op, "kind", kind, "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
