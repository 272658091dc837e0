// Package credential resolves the bearer token used by the GraphQL transport
// and the spatial-metadata client.
package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoCredential means no token is available; callers route to the
	// authentication entry point.
	ErrNoCredential = errors.New("no credential")
	// ErrExpired means a JWT credential is present but past its expiry.
	ErrExpired = errors.New("credential expired")
)

// TokenKey is the storage key the access token lives under.
const TokenKey = "accessToken"

// Token is a bearer token.
type Token string

// Header returns the Authorization header value for the token.
func (t Token) Header() string {
	return "Bearer " + string(t)
}

// Provider returns the current token or ErrNoCredential.
type Provider interface {
	Token(ctx context.Context) (Token, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (Token, error)

// Token implements Provider.
func (f ProviderFunc) Token(ctx context.Context) (Token, error) { return f(ctx) }

// Static returns a provider for a fixed token. An empty token yields
// ErrNoCredential.
func Static(token string) Provider {
	return ProviderFunc(func(context.Context) (Token, error) {
		return normalize(token, time.Now)
	})
}

// Getter reads raw tokens from persistent storage.
type Getter interface {
	GetCredential(ctx context.Context, name string) (string, error)
}

// StoreProvider reads the token from persistent storage at call time.
type StoreProvider struct {
	store Getter
	now   func() time.Time
}

// NewStoreProvider creates a provider over store.
func NewStoreProvider(store Getter) *StoreProvider {
	return &StoreProvider{store: store, now: time.Now}
}

// Token implements Provider.
func (p *StoreProvider) Token(ctx context.Context) (Token, error) {
	raw, err := p.store.GetCredential(ctx, TokenKey)
	if err != nil {
		return "", fmt.Errorf("read stored credential: %w", err)
	}
	return normalize(raw, p.now)
}

// Chain tries providers in order and returns the first token found. An
// expired token stops the chain so it is reported rather than masked.
func Chain(providers ...Provider) Provider {
	return ProviderFunc(func(ctx context.Context) (Token, error) {
		for _, p := range providers {
			if p == nil {
				continue
			}
			tok, err := p.Token(ctx)
			if errors.Is(err, ErrNoCredential) {
				continue
			}
			return tok, err
		}
		return "", ErrNoCredential
	})
}

func normalize(raw string, now func() time.Time) (Token, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "Bearer "))
	if raw == "" {
		return "", ErrNoCredential
	}
	if expired(raw, now()) {
		return "", ErrExpired
	}
	return Token(raw), nil
}

// expired reports whether raw is a JWT whose exp claim is before now. Opaque
// tokens and JWTs without exp are never considered expired; the signature is
// the backend's business.
func expired(raw string, now time.Time) bool {
	if strings.Count(raw, ".") != 2 {
		return false
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Before(now)
}
