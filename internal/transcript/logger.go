// Package transcript writes an NDJSON conversation log per chat session.
package transcript

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one line of a conversation log.
type Event struct {
	Timestamp   string `json:"ts"`
	ChatUUID    string `json:"chat_uuid"`
	Channel     string `json:"channel"`
	Direction   string `json:"direction"`
	EventType   string `json:"event_type"`
	Content     string `json:"content,omitempty"`
	ContentRaw  string `json:"content_raw,omitempty"`
	Status      string `json:"status,omitempty"`
	HasGeometry bool   `json:"has_geometry,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Event types.
const (
	EventUserMessage   = "chat_user_message"
	EventSpatialAnswer = "spatial_answer"
	EventSpatialError  = "spatial_error"
	EventPersistError  = "persist_error"
)

// Config controls conversation logging.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Logger records conversation events. Log never blocks.
type Logger interface {
	Log(event Event)
	Close() error
}

// NewLogger returns a file-backed logger, or a no-op logger when disabled.
func NewLogger(cfg Config, logger *slog.Logger) (Logger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled {
		return noopLogger{}, nil
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversation log dir: %w", err)
	}

	l := &fileLogger{
		dir:    cfg.Dir,
		queue:  make(chan Event, cfg.QueueSize),
		files:  make(map[string]*os.File),
		logger: logger,
	}
	l.wg.Add(1)
	go l.run()
	return l, nil
}

type noopLogger struct{}

func (noopLogger) Log(Event)    {}
func (noopLogger) Close() error { return nil }

type fileLogger struct {
	dir    string
	queue  chan Event
	files  map[string]*os.File
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func (l *fileLogger) Log(event Event) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if event.Content == "" && event.ContentRaw != "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- event:
	default:
		l.logger.Warn("Conversation log queue full, dropping event", "chat_uuid", event.ChatUUID, "event_type", event.EventType)
	}
}

func (l *fileLogger) run() {
	defer l.wg.Done()
	for event := range l.queue {
		if err := l.write(event); err != nil {
			l.logger.Warn("Failed to write conversation log", "error", err, "chat_uuid", event.ChatUUID)
		}
	}
}

func (l *fileLogger) write(event Event) error {
	name := fileName(event.ChatUUID)
	f, ok := l.files[name]
	if !ok {
		var err error
		f, err = os.OpenFile(filepath.Join(l.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open conversation log: %w", err)
		}
		l.files[name] = f
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode conversation event: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append conversation event: %w", err)
	}
	return nil
}

// Close drains the queue and closes all files.
func (l *fileLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	l.wg.Wait()

	var firstErr error
	for name, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close conversation log %s: %w", name, err)
		}
	}
	return firstErr
}

func fileName(chatUUID string) string {
	id, err := uuid.Parse(chatUUID)
	if err != nil {
		return "unknown.ndjson"
	}
	return id.String() + ".ndjson"
}

var (
	ansiPattern       = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// cleanForReadability strips terminal escapes and collapses whitespace.
func cleanForReadability(raw string) string {
	clean := ansiPattern.ReplaceAllString(raw, "")
	clean = whitespacePattern.ReplaceAllString(clean, " ")
	return strings.TrimSpace(clean)
}
