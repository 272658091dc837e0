package credential

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

type mapGetter map[string]string

func (m mapGetter) GetCredential(_ context.Context, name string) (string, error) {
	return m[name], nil
}

type failingGetter struct{}

func (failingGetter) GetCredential(context.Context, string) (string, error) {
	return "", errors.New("disk on fire")
}

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
		Issuer:    "geochat-test",
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestStatic(t *testing.T) {
	t.Run("should return the token with a bearer header", func(t *testing.T) {
		req := require.New(t)
		tok, err := Static("abc").Token(context.Background())
		req.NoError(err)
		req.Equal("Bearer abc", tok.Header())
	})

	t.Run("should report absence for blank tokens", func(t *testing.T) {
		_, err := Static("   ").Token(context.Background())
		require.ErrorIs(t, err, ErrNoCredential)
	})

	t.Run("should reject expired JWTs", func(t *testing.T) {
		_, err := Static(signed(t, time.Now().Add(-time.Hour))).Token(context.Background())
		require.ErrorIs(t, err, ErrExpired)
	})

	t.Run("should accept live JWTs", func(t *testing.T) {
		raw := signed(t, time.Now().Add(time.Hour))
		tok, err := Static(raw).Token(context.Background())
		require.NoError(t, err)
		require.Equal(t, Token(raw), tok)
	})
}

func TestStoreProvider(t *testing.T) {
	req := require.New(t)

	tok, err := NewStoreProvider(mapGetter{TokenKey: "stored"}).Token(context.Background())
	req.NoError(err)
	req.Equal(Token("stored"), tok)

	_, err = NewStoreProvider(mapGetter{}).Token(context.Background())
	req.ErrorIs(err, ErrNoCredential)

	_, err = NewStoreProvider(failingGetter{}).Token(context.Background())
	req.Error(err)
	req.NotErrorIs(err, ErrNoCredential)
}

func TestChain(t *testing.T) {
	req := require.New(t)

	tok, err := Chain(Static(""), nil, Static("second")).Token(context.Background())
	req.NoError(err)
	req.Equal(Token("second"), tok)

	_, err = Chain(Static(""), Static("")).Token(context.Background())
	req.ErrorIs(err, ErrNoCredential)

	_, err = Chain(Static(signed(t, time.Now().Add(-time.Minute))), Static("fallback")).Token(context.Background())
	req.ErrorIs(err, ErrExpired)
}
