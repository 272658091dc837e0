package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/geochat/internal/credential"
	"github.com/ashureev/geochat/internal/domain"
	"github.com/ashureev/geochat/internal/mapview"
	"github.com/ashureev/geochat/internal/relay"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

type fakeRepo struct {
	mu       sync.Mutex
	creds    map[string]string
	sessions []*domain.SessionRecord
	pingErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{creds: make(map[string]string)}
}

func (f *fakeRepo) GetCredential(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creds[name], nil
}

func (f *fakeRepo) PutCredential(_ context.Context, name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creds[name] = value
	return nil
}

func (f *fakeRepo) DeleteCredential(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.creds, name)
	return nil
}

func (f *fakeRepo) RecordSession(_ context.Context, chatUUID string, openedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, &domain.SessionRecord{ChatUUID: chatUUID, CreatedAt: openedAt, LastOpenedAt: openedAt})
	return nil
}

func (f *fakeRepo) RecentSessions(_ context.Context, limit int) ([]*domain.SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > len(f.sessions) {
		limit = len(f.sessions)
	}
	return f.sessions[:limit], nil
}

func (f *fakeRepo) PruneHistory(context.Context, time.Duration) (int64, error) { return 0, nil }
func (f *fakeRepo) Ping(context.Context) error                                 { return f.pingErr }
func (f *fakeRepo) Close() error                                               { return nil }

type fakeCreator struct {
	created []string
	err     error
}

func (c *fakeCreator) CreateSession(_ context.Context, chatUUID string) error {
	if c.err != nil {
		return c.err
	}
	c.created = append(c.created, chatUUID)
	return nil
}

func newRouter(repo *fakeRepo, creator *fakeCreator, registry *relay.Registry) http.Handler {
	r := chi.NewRouter()
	base := NewHandler(repo, registry)
	NewChatHandler(base, creator, mapview.DefaultOptions("pk.test"), "/login").
		RegisterRoutes(r, func(next http.Handler) http.Handler { return next })
	NewHealthHandler(base).RegisterHealth(r)
	return r
}

func TestGetConfig(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(newFakeRepo(), &fakeCreator{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	var got struct {
		Map       mapview.Options `json:"map"`
		AuthURL   string          `json:"auth_url"`
		ChatParam string          `json:"chat_param"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got.Map.Style != mapview.DefaultStyle || got.Map.AccessToken != "pk.test" {
		t.Errorf("unexpected map config %+v", got.Map)
	}
	if got.AuthURL != "/login" || got.ChatParam != "chatuuid" {
		t.Errorf("unexpected config %+v", got)
	}
}

func TestCreateChatRecordsHistory(t *testing.T) {
	repo := newFakeRepo()
	creator := &fakeCreator{}
	rec := httptest.NewRecorder()
	newRouter(repo, creator, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chats", nil))

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", rec.Code)
	}
	var got map[string]string
	_ = json.NewDecoder(rec.Body).Decode(&got)
	if len(creator.created) != 1 || creator.created[0] != got["chat_uuid"] {
		t.Fatalf("created %v, response %v", creator.created, got)
	}
	if len(repo.sessions) != 1 || repo.sessions[0].ChatUUID != got["chat_uuid"] {
		t.Fatalf("expected session to be recorded, got %v", repo.sessions)
	}
}

func TestCreateChatBackendFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(newFakeRepo(), &fakeCreator{err: errors.New("hasura down")}, nil).
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chats", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("Expected status 502, got %d", rec.Code)
	}
}

func TestRecentChatsIncludesViewers(t *testing.T) {
	repo := newFakeRepo()
	now := time.Now()
	_ = repo.RecordSession(context.Background(), "chat-a", now)
	_ = repo.RecordSession(context.Background(), "chat-b", now)
	registry := relay.NewRegistry()
	registry.Register("chat-a", &stubPeer{id: "conn-1"})

	rec := httptest.NewRecorder()
	newRouter(repo, &fakeCreator{}, registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chats/recent?limit=1", nil))

	var got struct {
		Chats []recentChat `json:"chats"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(got.Chats) != 1 || got.Chats[0].ChatUUID != "chat-a" || got.Chats[0].Viewers != 1 {
		t.Fatalf("unexpected chats %+v", got.Chats)
	}
}

func TestRecentChatsRejectsBadLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(newFakeRepo(), &fakeCreator{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chats/recent?limit=-3", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rec.Code)
	}
}

func TestPutCredential(t *testing.T) {
	repo := newFakeRepo()
	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"access_token":"Bearer abc123"}`)
	newRouter(repo, &fakeCreator{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/credentials", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if repo.creds[credential.TokenKey] != "abc123" {
		t.Fatalf("expected normalized token to be stored, got %q", repo.creds[credential.TokenKey])
	}
}

func TestPutCredentialRejectsExpiredAndEmpty(t *testing.T) {
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	for name, body := range map[string]string{
		"expired": `{"access_token":"` + expired + `"}`,
		"empty":   `{"access_token":""}`,
		"unknown": `{"token":"abc"}`,
	} {
		t.Run(name, func(t *testing.T) {
			repo := newFakeRepo()
			rec := httptest.NewRecorder()
			newRouter(repo, &fakeCreator{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/credentials", strings.NewReader(body)))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("Expected status 400, got %d", rec.Code)
			}
			if len(repo.creds) != 0 {
				t.Fatalf("expected nothing stored, got %v", repo.creds)
			}
		})
	}
}

func TestDeleteCredential(t *testing.T) {
	repo := newFakeRepo()
	repo.creds[credential.TokenKey] = "abc"
	rec := httptest.NewRecorder()
	newRouter(repo, &fakeCreator{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/credentials", nil))

	if rec.Code != http.StatusOK || len(repo.creds) != 0 {
		t.Fatalf("expected credential removed, got %d %v", rec.Code, repo.creds)
	}
}

func TestHealth(t *testing.T) {
	repo := newFakeRepo()
	rec := httptest.NewRecorder()
	newRouter(repo, &fakeCreator{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	repo.pingErr = errors.New("disk gone")
	rec = httptest.NewRecorder()
	newRouter(repo, &fakeCreator{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status 503, got %d", rec.Code)
	}
}

type stubPeer struct{ id string }

func (p *stubPeer) ID() string   { return p.id }
func (p *stubPeer) Close(string) {}
