package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ashureev/geochat/internal/credential"
	"github.com/ashureev/geochat/internal/domain"
	"github.com/ashureev/geochat/internal/identity"
	"github.com/ashureev/geochat/internal/mapview"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

// ChatCreator creates empty chat records in the backend.
type ChatCreator interface {
	CreateSession(ctx context.Context, chatUUID string) error
}

// ChatHandler serves page configuration, chat creation, local history and
// credential storage.
type ChatHandler struct {
	*Handler
	chats   ChatCreator
	mapOpts mapview.Options
	authURL string
}

// NewChatHandler creates a chat handler.
func NewChatHandler(base *Handler, chats ChatCreator, mapOpts mapview.Options, authURL string) *ChatHandler {
	return &ChatHandler{Handler: base, chats: chats, mapOpts: mapOpts, authURL: authURL}
}

// RegisterRoutes registers API routes. requireAuth guards the routes that
// reach the backend.
func (h *ChatHandler) RegisterRoutes(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/config", h.GetConfig)
		r.Post("/credentials", h.PutCredential)
		r.Delete("/credentials", h.DeleteCredential)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/chats", h.CreateChat)
			r.Get("/chats/recent", h.RecentChats)
		})
	})
}

// GetConfig returns what the page needs to draw the map and connect.
func (h *ChatHandler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"map":        h.mapOpts,
		"auth_url":   h.authURL,
		"ws_path":    "/ws/view",
		"chat_param": identity.ChatUUIDParam,
	})
}

// CreateChat creates an empty chat record and returns its id.
func (h *ChatHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	chatUUID := uuid.NewString()
	if err := h.chats.CreateSession(r.Context(), chatUUID); err != nil {
		slog.Error("Failed to create chat", "error", err, "chat_uuid", chatUUID)
		Error(w, http.StatusBadGateway, "create_chat_failed")
		return
	}
	if err := h.repo.RecordSession(r.Context(), chatUUID, time.Now()); err != nil {
		slog.Warn("Failed to record chat session", "error", err, "chat_uuid", chatUUID)
	}

	slog.Info("Chat created", "chat_uuid", chatUUID)
	JSON(w, http.StatusCreated, map[string]string{"chat_uuid": chatUUID})
}

type recentChat struct {
	ChatUUID     string    `json:"chat_uuid"`
	CreatedAt    time.Time `json:"created_at"`
	LastOpenedAt time.Time `json:"last_opened_at"`
	Viewers      int       `json:"viewers"`
}

// RecentChats lists chat sessions opened from this host, newest first.
func (h *ChatHandler) RecentChats(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		limit = min(n, maxRecentLimit)
	}

	records, err := h.repo.RecentSessions(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list recent chats", "error", err)
		Error(w, http.StatusInternalServerError, "history_unavailable")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"chats": lo.Map(records, func(rec *domain.SessionRecord, _ int) recentChat {
			return recentChat{
				ChatUUID:     rec.ChatUUID,
				CreatedAt:    rec.CreatedAt.UTC(),
				LastOpenedAt: rec.LastOpenedAt.UTC(),
				Viewers:      h.registry.Count(rec.ChatUUID),
			}
		}),
	})
}

type credentialRequest struct {
	AccessToken string `json:"access_token" validate:"required"`
}

// PutCredential stores the bearer token the host uses for the backend.
func (h *ChatHandler) PutCredential(w http.ResponseWriter, r *http.Request) {
	var in credentialRequest
	if err := decodeJSON(r, &in); err != nil {
		Error(w, http.StatusBadRequest, "invalid_request")
		return
	}

	token, err := credential.Static(in.AccessToken).Token(r.Context())
	switch {
	case errors.Is(err, credential.ErrExpired):
		Error(w, http.StatusBadRequest, "credential_expired")
		return
	case err != nil:
		Error(w, http.StatusBadRequest, "credential_missing")
		return
	}

	if err := h.repo.PutCredential(r.Context(), credential.TokenKey, string(token)); err != nil {
		slog.Error("Failed to store credential", "error", err)
		Error(w, http.StatusInternalServerError, "credential_store_failed")
		return
	}
	slog.Info("Credential stored")
	JSON(w, http.StatusOK, map[string]string{"status": "stored"})
}

// DeleteCredential forgets the stored bearer token.
func (h *ChatHandler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeleteCredential(r.Context(), credential.TokenKey); err != nil {
		slog.Error("Failed to delete credential", "error", err)
		Error(w, http.StatusInternalServerError, "credential_store_failed")
		return
	}
	slog.Info("Credential removed")
	JSON(w, http.StatusOK, map[string]string{"status": "removed"})
}
