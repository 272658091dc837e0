// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/geochat/internal/domain"
)

// Repository defines the interface for local persistence: the credential
// storage the view host reads bearer tokens from, and the history of chat
// sessions opened from this machine.
type Repository interface {
	// GetCredential returns the stored value for name, or "" if none is stored.
	GetCredential(ctx context.Context, name string) (string, error)

	// PutCredential creates or replaces the value stored under name.
	PutCredential(ctx context.Context, name, value string) error

	// DeleteCredential removes the value stored under name.
	DeleteCredential(ctx context.Context, name string) error

	// RecordSession remembers that a chat session was opened at openedAt.
	RecordSession(ctx context.Context, chatUUID string, openedAt time.Time) error

	// RecentSessions returns up to limit sessions, most recently opened first.
	RecentSessions(ctx context.Context, limit int) ([]*domain.SessionRecord, error)

	// PruneHistory removes sessions not opened within ttl.
	PruneHistory(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
