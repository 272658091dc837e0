// Package identity gates requests on a usable bearer credential and carries
// the navigable chat session id through the request context.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/ashureev/geochat/internal/credential"
	"github.com/google/uuid"
)

const (
	// ChatUUIDParam is the query parameter holding the active chat session.
	ChatUUIDParam = "chatuuid"
	// NextParam tells the login page where to return to.
	NextParam = "next"
)

type contextKey int

const (
	tokenKey contextKey = iota
	chatUUIDKey
)

// TokenFromContext returns the credential resolved for the request.
func TokenFromContext(ctx context.Context) credential.Token {
	if v, ok := ctx.Value(tokenKey).(credential.Token); ok {
		return v
	}
	return ""
}

// ChatUUIDFromContext returns the sanitized chat id of the request, or "".
func ChatUUIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(chatUUIDKey).(string); ok {
		return v
	}
	return ""
}

// WithChatUUID stores a chat id in ctx.
func WithChatUUID(ctx context.Context, chatUUID string) context.Context {
	return context.WithValue(ctx, chatUUIDKey, chatUUID)
}

// SanitizeChatUUID returns the canonical form of id, or "" when id is not a
// UUID.
func SanitizeChatUUID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return ""
	}
	return parsed.String()
}

// ChatUUIDFromRequest reads and sanitizes the chatuuid query parameter.
func ChatUUIDFromRequest(r *http.Request) string {
	return SanitizeChatUUID(r.URL.Query().Get(ChatUUIDParam))
}

// RequirePage serves the page only with a usable credential. Otherwise the
// browser is sent to authURL with the original location in ?next=.
func RequirePage(creds credential.Provider, authURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := creds.Token(r.Context())
			if err != nil {
				slog.Info("Redirecting to authentication", "reason", reason(err), "path", r.URL.Path)
				http.Redirect(w, r, loginLocation(authURL, r.URL.RequestURI()), http.StatusFound)
				return
			}
			next.ServeHTTP(w, r.WithContext(withRequest(r, token)))
		})
	}
}

// RequireAPI answers 401 when no usable credential exists.
func RequireAPI(creds credential.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := creds.Token(r.Context())
			if err != nil {
				slog.Warn("Rejecting unauthenticated request", "reason", reason(err), "path", r.URL.Path, "ip", IPFromRequest(r))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"` + reason(err) + `"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(withRequest(r, token)))
		})
	}
}

func withRequest(r *http.Request, token credential.Token) context.Context {
	ctx := context.WithValue(r.Context(), tokenKey, token)
	return WithChatUUID(ctx, ChatUUIDFromRequest(r))
}

func reason(err error) string {
	switch {
	case errors.Is(err, credential.ErrExpired):
		return "credential_expired"
	case errors.Is(err, credential.ErrNoCredential):
		return "credential_missing"
	default:
		return "credential_unavailable"
	}
}

func loginLocation(authURL, requestURI string) string {
	u, err := url.Parse(authURL)
	if err != nil {
		return authURL
	}
	q := u.Query()
	q.Set(NextParam, requestURI)
	u.RawQuery = q.Encode()
	return u.String()
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
