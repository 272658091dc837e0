// Package chat keeps the visible message list of a chat session in sync with
// the backend: local sends are shown immediately and the subscription feed
// replaces the list whenever it pushes a snapshot.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/geochat/internal/domain"
	"github.com/ashureev/geochat/internal/spatial"
	"github.com/ashureev/geochat/internal/transcript"
	"github.com/google/uuid"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("chat store closed")

// Persistence stores and streams chat records.
type Persistence interface {
	CreateSession(ctx context.Context, chatUUID string) error
	ReplaceMessages(ctx context.Context, chatUUID string, msgs []domain.ChatMessage) error
	Subscribe(ctx context.Context, chatUUID string) (domain.SnapshotFeed, error)
}

// Asker sends a question to the spatial-metadata service.
type Asker interface {
	Ask(ctx context.Context, chatUUID, question string) (*spatial.AskResponse, error)
}

// Reason says why the visible message list changed.
type Reason string

const (
	ReasonSessionOpened Reason = "session_opened"
	ReasonLocalSend     Reason = "local_send"
	ReasonSnapshot      Reason = "snapshot"
)

// Change describes the visible message list after a change. Version grows
// with every change so consumers can drop notifications that arrive out of
// order.
type Change struct {
	ChatUUID string
	Messages []domain.ChatMessage
	Reason   Reason
	Version  uint64
}

// Options wires a store to its host.
type Options struct {
	// OnChange is called after every change of the visible list.
	OnChange func(Change)
	// OnGeometry receives the serialized polygon of an answer.
	OnGeometry func(geometry string)
	// OnNavigate is called with the id of a newly created session so the host
	// can reflect it in its navigable state.
	OnNavigate func(chatUUID string)
	// Transcript records questions and answers; nil disables it.
	Transcript transcript.Logger
	// Channel labels transcript events with the host that produced them.
	Channel string
	Now     func() time.Time
	NewID   func() string
	Logger  *slog.Logger
}

// Store holds the authoritative message list of the active session.
type Store struct {
	persist Persistence
	asker   Asker
	opts    Options
	logger  *slog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu         sync.Mutex
	active     string
	messages   []domain.ChatMessage
	generation uint64
	version    uint64
	feed       domain.SnapshotFeed
	closed     bool
	issued     map[string]struct{}
}

// NewStore creates a store with no active session.
func NewStore(persist Persistence, asker Asker, opts Options) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Channel == "" {
		opts.Channel = "chat"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		persist:    persist,
		asker:      asker,
		opts:       opts,
		logger:     opts.Logger,
		baseCtx:    ctx,
		baseCancel: cancel,
		issued:     make(map[string]struct{}),
	}
}

// Active returns the active session id, or "" when none is active.
func (s *Store) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Messages returns a copy of the visible message list.
func (s *Store) Messages() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// OpenSession makes chatUUID the active session and attaches to its snapshot
// feed. An empty id leaves the store with no active session, which disables
// Send. The previous feed, if any, is detached first.
func (s *Store) OpenSession(chatUUID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	prev := s.feed
	s.feed = nil
	s.generation++
	gen := s.generation
	s.active = chatUUID
	s.messages = nil
	change := s.changeLocked(ReasonSessionOpened)
	s.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			s.logger.Debug("Failed to close previous chat feed", "error", err)
		}
	}
	s.notify(change)

	if chatUUID == "" {
		s.logger.Debug("No active chat session")
		return nil
	}

	feed, err := s.persist.Subscribe(s.baseCtx, chatUUID)
	if err != nil {
		s.logger.Error("Failed to subscribe to chat", "chat_uuid", chatUUID, "error", err)
		return fmt.Errorf("open session %s: %w", chatUUID, err)
	}

	s.mu.Lock()
	if s.closed || gen != s.generation {
		s.mu.Unlock()
		_ = feed.Close()
		return nil
	}
	s.feed = feed
	s.mu.Unlock()

	go s.drain(gen, feed)
	s.logger.Info("Chat session opened", "chat_uuid", chatUUID)
	return nil
}

func (s *Store) drain(gen uint64, feed domain.SnapshotFeed) {
	for snap := range feed.Snapshots() {
		s.apply(gen, snap)
	}
	if err := feed.Err(); err != nil {
		s.logger.Warn("Chat feed ended", "error", err)
	}
}

// ApplySnapshot replaces the visible list with snap if it belongs to the
// active session. Applying the same snapshot again leaves the list as is.
func (s *Store) ApplySnapshot(snap domain.Snapshot) {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()
	s.apply(gen, snap)
}

func (s *Store) apply(gen uint64, snap domain.Snapshot) {
	s.mu.Lock()
	if s.closed || gen != s.generation || s.active == "" || snap.SessionID != s.active {
		s.mu.Unlock()
		return
	}
	s.messages = slices.Clone(snap.Messages)
	change := s.changeLocked(ReasonSnapshot)
	s.mu.Unlock()

	s.notify(change)
}

// Send appends a user message, persists the full list, then asks the
// spatial-metadata service and forwards any geometry. Blank text or no
// active session is a logged no-op. Failures are logged; the optimistic
// message stays visible.
func (s *Store) Send(ctx context.Context, text string) {
	question := strings.TrimSpace(text)
	if question == "" {
		s.logger.Debug("Ignoring blank chat message")
		return
	}

	s.mu.Lock()
	if s.closed || s.active == "" {
		s.mu.Unlock()
		s.logger.Warn("Cannot send chat message without an active session")
		return
	}
	msg := domain.NewUserMessage(question, s.stampLocked())
	s.messages = append(s.messages, msg)
	chatUUID := s.active
	gen := s.generation
	updated := slices.Clone(s.messages)
	change := s.changeLocked(ReasonLocalSend)
	s.mu.Unlock()

	s.notify(change)
	s.record(transcript.Event{
		ChatUUID:   chatUUID,
		Direction:  "outbound",
		EventType:  transcript.EventUserMessage,
		ContentRaw: question,
	})

	if err := s.persist.ReplaceMessages(ctx, chatUUID, updated); err != nil {
		s.logger.Error("Failed to persist chat messages", "chat_uuid", chatUUID, "error", err)
		s.record(transcript.Event{ChatUUID: chatUUID, Direction: "outbound", EventType: transcript.EventPersistError, Error: err.Error()})
		return
	}

	resp, err := s.asker.Ask(ctx, chatUUID, question)
	if err != nil {
		s.logger.Error("Failed to ask spatial service", "chat_uuid", chatUUID, "error", err)
		s.record(transcript.Event{ChatUUID: chatUUID, Direction: "inbound", EventType: transcript.EventSpatialError, Error: err.Error()})
		return
	}
	s.record(transcript.Event{
		ChatUUID:    chatUUID,
		Direction:   "inbound",
		EventType:   transcript.EventSpatialAnswer,
		Status:      resp.Status,
		HasGeometry: resp.Geometry != "",
	})

	if !s.alive(gen) {
		s.logger.Debug("Dropping answer for inactive session", "chat_uuid", chatUUID)
		return
	}
	if resp.Geometry != "" && s.opts.OnGeometry != nil {
		s.opts.OnGeometry(resp.Geometry)
	}
}

// CreateSession creates an empty chat record under a fresh id and makes it
// the active session.
func (s *Store) CreateSession(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	chatUUID := s.opts.NewID()
	for {
		if _, dup := s.issued[chatUUID]; !dup {
			break
		}
		chatUUID = s.opts.NewID()
	}
	s.issued[chatUUID] = struct{}{}
	s.mu.Unlock()

	if err := s.persist.CreateSession(ctx, chatUUID); err != nil {
		s.logger.Error("Failed to create chat", "chat_uuid", chatUUID, "error", err)
		return "", fmt.Errorf("create session: %w", err)
	}

	if s.opts.OnNavigate != nil {
		s.opts.OnNavigate(chatUUID)
	}
	if err := s.OpenSession(chatUUID); err != nil {
		return chatUUID, err
	}
	return chatUUID, nil
}

// Close detaches from the feed and turns later calls into no-ops. Safe to
// call more than once.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	feed := s.feed
	s.feed = nil
	s.mu.Unlock()

	if feed != nil {
		if err := feed.Close(); err != nil {
			s.logger.Debug("Failed to close chat feed", "error", err)
		}
	}
	s.baseCancel()
}

func (s *Store) alive(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && gen == s.generation
}

// stampLocked returns the current time, never earlier than the last message.
func (s *Store) stampLocked() time.Time {
	now := s.opts.Now()
	if n := len(s.messages); n > 0 {
		if last := s.messages[n-1].Time(); last.After(now) {
			return last
		}
	}
	return now
}

func (s *Store) changeLocked(reason Reason) Change {
	s.version++
	return Change{
		ChatUUID: s.active,
		Messages: slices.Clone(s.messages),
		Reason:   reason,
		Version:  s.version,
	}
}

func (s *Store) notify(change Change) {
	if s.opts.OnChange != nil {
		s.opts.OnChange(change)
	}
}

func (s *Store) record(event transcript.Event) {
	if s.opts.Transcript == nil {
		return
	}
	event.Channel = s.opts.Channel
	s.opts.Transcript.Log(event)
}
