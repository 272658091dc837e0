// Package persistence stores chat records in the GraphQL backend and streams
// their changes back.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/geochat/internal/domain"
	"github.com/ashureev/geochat/internal/graphql"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var validate = validator.New()

// ErrChatNotFound is returned when no chat record matches a chat_uuid.
var ErrChatNotFound = errors.New("chat not found")

// Executor is the slice of the GraphQL client the repository needs.
type Executor interface {
	Execute(ctx context.Context, op graphql.Operation, out any) error
	Subscribe(ctx context.Context, op graphql.Operation) (graphql.Stream, error)
}

// chatRow is a wamex_chat record as returned by the backend.
type chatRow struct {
	ID        int64                  `json:"id"`
	Messages  domain.MessageEnvelope `json:"messages"`
	CreatedAt string                 `json:"created_at"`
	ChatUUID  string                 `json:"chat_uuid"`
	UpdatedAt string                 `json:"updated_at"`
}

// snapshot converts the row, dropping messages with an unknown role or no
// timestamp.
func (r chatRow) snapshot(logger *slog.Logger) domain.Snapshot {
	updated, err := time.Parse(time.RFC3339Nano, r.UpdatedAt)
	if err != nil {
		updated = time.Time{}
	}
	msgs := lo.Filter(r.Messages.Messages, func(m domain.ChatMessage, i int) bool {
		if err := validate.Struct(m); err != nil {
			logger.Warn("Dropping invalid chat message", "chat_uuid", r.ChatUUID, "index", i, "error", err)
			return false
		}
		return true
	})
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	return domain.Snapshot{SessionID: r.ChatUUID, Messages: msgs, UpdatedAt: updated}
}

// Repository reads and writes chat records.
type Repository struct {
	gql    Executor
	logger *slog.Logger
}

// NewRepository creates a repository over a GraphQL client.
func NewRepository(gql Executor, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{gql: gql, logger: logger}
}

func messageVars(chatUUID string, msgs []domain.ChatMessage) map[string]any {
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	return map[string]any{
		"chat_uuid": chatUUID,
		"messages":  domain.MessageEnvelope{Messages: msgs},
	}
}

// CreateSession inserts a chat record with an empty message sequence.
func (r *Repository) CreateSession(ctx context.Context, chatUUID string) error {
	var out struct {
		Inserted *chatRow `json:"insert_wamex_chat_one"`
	}
	op := graphql.Mutation("CreateChat", createChat, messageVars(chatUUID, nil))
	if err := r.gql.Execute(ctx, op, &out); err != nil {
		return fmt.Errorf("create chat %s: %w", chatUUID, err)
	}
	if out.Inserted == nil {
		return fmt.Errorf("create chat %s: no record returned", chatUUID)
	}
	r.logger.Info("Chat created", "chat_uuid", chatUUID, "id", out.Inserted.ID)
	return nil
}

// ReplaceMessages overwrites the full message sequence of a chat.
func (r *Repository) ReplaceMessages(ctx context.Context, chatUUID string, msgs []domain.ChatMessage) error {
	var out struct {
		Update struct {
			Returning []chatRow `json:"returning"`
		} `json:"update_wamex_chat"`
	}
	op := graphql.Mutation("UpdateChatByUuid", updateChatByUUID, messageVars(chatUUID, msgs))
	if err := r.gql.Execute(ctx, op, &out); err != nil {
		return fmt.Errorf("update chat %s: %w", chatUUID, err)
	}
	if len(out.Update.Returning) == 0 {
		return fmt.Errorf("update chat %s: %w", chatUUID, ErrChatNotFound)
	}
	return nil
}

// Load fetches the current record of a chat.
func (r *Repository) Load(ctx context.Context, chatUUID string) (domain.Snapshot, error) {
	var out struct {
		Chats []chatRow `json:"wamex_chat"`
	}
	op := graphql.Query("GetChatByUuid", queryChatByUUID, map[string]any{"chat_uuid": chatUUID})
	if err := r.gql.Execute(ctx, op, &out); err != nil {
		return domain.Snapshot{}, fmt.Errorf("load chat %s: %w", chatUUID, err)
	}
	if len(out.Chats) == 0 {
		return domain.Snapshot{}, fmt.Errorf("load chat %s: %w", chatUUID, ErrChatNotFound)
	}
	return out.Chats[0].snapshot(r.logger), nil
}

// Subscribe streams a snapshot every time the chat record changes.
func (r *Repository) Subscribe(ctx context.Context, chatUUID string) (domain.SnapshotFeed, error) {
	op := graphql.Subscription("GetChatByUuid", subChatByUUID, map[string]any{"chat_uuid": chatUUID})
	stream, err := r.gql.Subscribe(ctx, op)
	if err != nil {
		return nil, fmt.Errorf("subscribe chat %s: %w", chatUUID, err)
	}

	f := &feed{
		stream:    stream,
		snapshots: make(chan domain.Snapshot),
		done:      make(chan struct{}),
		logger:    r.logger.With("chat_uuid", chatUUID),
	}
	go f.pump(ctx)
	return f, nil
}

type feed struct {
	stream    graphql.Stream
	snapshots chan domain.Snapshot
	done      chan struct{}
	err       error
	closeOnce sync.Once
	logger    *slog.Logger
}

func (f *feed) pump(ctx context.Context) {
	defer close(f.snapshots)
	for resp := range f.stream.Events() {
		var out struct {
			Chats []chatRow `json:"wamex_chat"`
		}
		if err := resp.Decode(&out); err != nil {
			f.logger.Warn("Skipping chat subscription payload", "error", err)
			continue
		}
		if len(out.Chats) == 0 {
			continue
		}
		select {
		case f.snapshots <- out.Chats[0].snapshot(f.logger):
		case <-f.done:
			return
		case <-ctx.Done():
			return
		}
	}
	f.err = f.stream.Err()
}

func (f *feed) Snapshots() <-chan domain.Snapshot { return f.snapshots }

// Err is valid once Snapshots is closed.
func (f *feed) Err() error { return f.err }

func (f *feed) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.done)
		err = f.stream.Close()
	})
	return err
}
