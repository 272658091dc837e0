// geochat - map and chat view host
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/geochat/internal/api"
	"github.com/ashureev/geochat/internal/config"
	"github.com/ashureev/geochat/internal/credential"
	"github.com/ashureev/geochat/internal/graphql"
	"github.com/ashureev/geochat/internal/identity"
	"github.com/ashureev/geochat/internal/middleware"
	"github.com/ashureev/geochat/internal/persistence"
	"github.com/ashureev/geochat/internal/relay"
	"github.com/ashureev/geochat/internal/spatial"
	"github.com/ashureev/geochat/internal/store"
	"github.com/ashureev/geochat/internal/transcript"
	"github.com/ashureev/geochat/internal/view"
	"github.com/ashureev/geochat/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// The configured token wins; otherwise the one saved through /login.
	creds := credential.Chain(credential.Static(cfg.AccessToken), credential.NewStoreProvider(repo))

	gql := graphql.NewClient(
		graphql.NewHTTPTransport(cfg.GraphQLHTTPURL, creds, cfg.RequestTimeout, logger),
		graphql.NewWSTransport(cfg.GraphQLWSURL, creds, logger),
	)
	chats := persistence.NewRepository(gql, logger)
	asker := spatial.NewClient(cfg.SpatialAPIURL, creds, cfg.RequestTimeout, logger)

	conversations, err := transcript.NewLogger(transcript.Config{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversations.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	mapOpts := cfg.Map.Options()
	if mapOpts.AccessToken == "" {
		slog.Warn("MAPBOX_ACCESS_TOKEN not set, map will not be drawn")
	}

	// Initialize services.
	registry := relay.NewRegistry()

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, registry)
	healthHandler := api.NewHealthHandler(baseHandler)
	chatHandler := api.NewChatHandler(baseHandler, chats, mapOpts, cfg.AuthURL)
	viewHandler := view.NewHandler(view.Deps{
		Persistence: chats,
		Asker:       asker,
		History:     repo,
		Registry:    registry,
		Transcript:  conversations,
		MapOptions:  mapOpts,
		Logger:      logger,
	}, cfg.FrontendURL, cfg.IsDevelopment())

	requireAPI := identity.RequireAPI(creds)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))

	// Public routes.
	healthHandler.RegisterHealth(r)
	chatHandler.RegisterRoutes(r, requireAPI)
	r.Get("/login", web.PageHandler(web.LoginPage).ServeHTTP)
	r.Handle("/assets/*", web.AssetHandler())

	// Routes that need a backend credential.
	r.With(requireAPI).Get("/ws/view", viewHandler.ServeHTTP)
	r.With(identity.RequirePage(creds, cfg.AuthURL)).Get("/", web.PageHandler(web.IndexPage).ServeHTTP)

	// Create server.
	// WebSocket connections are long lived (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start history pruner.
	store.StartHistoryPruner(ctx, repo, cfg.HistoryTTL, nil)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	registry.CloseAll("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.IsDevelopment() || cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}
