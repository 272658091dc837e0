package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/geochat/internal/chat"
	"github.com/ashureev/geochat/internal/config"
	"github.com/ashureev/geochat/internal/credential"
	"github.com/ashureev/geochat/internal/domain"
	"github.com/ashureev/geochat/internal/graphql"
	"github.com/ashureev/geochat/internal/mapview"
	"github.com/ashureev/geochat/internal/persistence"
	"github.com/ashureev/geochat/internal/spatial"
	"github.com/ashureev/geochat/internal/store"
	"github.com/ashureev/geochat/internal/transcript"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// chatBackend is the chat persistence the CLI needs, including one-shot reads.
type chatBackend interface {
	chat.Persistence
	Load(ctx context.Context, chatUUID string) (domain.Snapshot, error)
}

type app struct {
	repo          store.Repository
	chats         chatBackend
	asker         chat.Asker
	conversations transcript.Logger
	mapOpts       mapview.Options
	logger        *slog.Logger
	newID         func() string
	now           func() time.Time
}

func wireApp(logger *slog.Logger) (*app, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	creds := credential.Chain(credential.Static(cfg.AccessToken), credential.NewStoreProvider(repo))
	gql := graphql.NewClient(
		graphql.NewHTTPTransport(cfg.GraphQLHTTPURL, creds, cfg.RequestTimeout, logger),
		graphql.NewWSTransport(cfg.GraphQLWSURL, creds, logger),
	)

	conversations, err := transcript.NewLogger(transcript.Config{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("open conversation log: %w", err)
	}

	return &app{
		repo:          repo,
		chats:         persistence.NewRepository(gql, logger),
		asker:         spatial.NewClient(cfg.SpatialAPIURL, creds, cfg.RequestTimeout, logger),
		conversations: conversations,
		mapOpts:       cfg.Map.Options(),
		logger:        logger,
		newID:         uuid.NewString,
		now:           time.Now,
	}, nil
}

// Close releases the local store and flushes the conversation log.
func (a *app) Close() error {
	var errs []error
	if a.conversations != nil {
		errs = append(errs, a.conversations.Close())
	}
	if a.repo != nil {
		errs = append(errs, a.repo.Close())
	}
	return errors.Join(errs...)
}
