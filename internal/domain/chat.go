package domain

import (
	"slices"
	"time"
)

// Role identifies who authored a chat message.
type Role string

const (
	// RoleUser marks a message typed by the person at the map.
	RoleUser Role = "user"
	// RoleAssistant marks a message written by the backend.
	RoleAssistant Role = "assistant"
)

// ChatMessage is a single entry in a chat session. Messages are never edited
// after creation; their order is the order they were appended in.
type ChatMessage struct {
	Role      Role   `json:"role" validate:"required,oneof=user assistant"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp" validate:"required"`
}

// Time parses the message timestamp. A zero time is returned for timestamps
// that are not RFC 3339.
func (m ChatMessage) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, m.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// NewUserMessage builds a user message stamped with t in UTC.
func NewUserMessage(content string, t time.Time) ChatMessage {
	return ChatMessage{
		Role:      RoleUser,
		Content:   content,
		Timestamp: FormatTimestamp(t),
	}
}

// FormatTimestamp renders t the way message timestamps are stored.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// ChatSession is a conversation identified by SessionID.
type ChatSession struct {
	SessionID string        `json:"chat_uuid"`
	Messages  []ChatMessage `json:"messages"`
}

// Snapshot is the authoritative message sequence for a session as pushed by
// the subscription feed. Applying a snapshot replaces local state wholesale.
type Snapshot struct {
	SessionID string
	Messages  []ChatMessage
	UpdatedAt time.Time
}

// Clone returns a copy of the snapshot that shares no backing array.
func (s Snapshot) Clone() Snapshot {
	s.Messages = slices.Clone(s.Messages)
	return s
}

// MessageEnvelope is the jsonb shape chat records carry their messages in.
type MessageEnvelope struct {
	Messages []ChatMessage `json:"messages"`
}

// SessionRecord is a locally remembered chat session.
type SessionRecord struct {
	ChatUUID     string
	CreatedAt    time.Time
	LastOpenedAt time.Time
}

// SnapshotFeed delivers authoritative snapshots for one session.
type SnapshotFeed interface {
	// Snapshots is closed when the feed ends.
	Snapshots() <-chan Snapshot
	// Err reports why the feed ended; nil for a clean completion or Close.
	Err() error
	// Close stops the feed. Safe to call more than once.
	Close() error
}
