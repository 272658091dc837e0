package view

import (
	"log/slog"
	"net/http"

	"github.com/ashureev/geochat/internal/identity"
	"github.com/ashureev/geochat/internal/relay"
	"github.com/coder/websocket"
)

// Handler upgrades page connections and runs a View for each.
type Handler struct {
	deps          Deps
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a websocket handler. allowedOrigin "*" accepts any
// origin; development mode skips the check.
func NewHandler(deps Deps, allowedOrigin string, isDev bool) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Registry == nil {
		deps.Registry = relay.NewRegistry()
	}
	return &Handler{deps: deps, allowedOrigin: allowedOrigin, isDev: isDev}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	chatUUID := identity.ChatUUIDFromContext(r.Context())
	if chatUUID == "" {
		chatUUID = identity.ChatUUIDFromRequest(r)
	}
	h.deps.Logger.Info("View connection request", "chat_uuid", chatUUID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.deps.Logger.Error("Failed to accept WebSocket", "error", err, "chat_uuid", chatUUID)
		return
	}

	conn := relay.NewConn(r.Context(), ws)
	defer conn.Close("view ended")

	New(h.deps, conn).Run(r.Context(), chatUUID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	h.deps.Logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
