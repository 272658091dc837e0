package identity

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ashureev/geochat/internal/credential"
)

const chatID = "3F2504E0-4F89-41D3-9A0C-0305E82C3301"

func TestSanitizeChatUUID(t *testing.T) {
	tests := map[string]string{
		"":                  "",
		"   ":               "",
		"not-a-uuid":        "",
		chatID:              strings.ToLower(chatID),
		" " + chatID + "\n": strings.ToLower(chatID),
	}
	for in, want := range tests {
		if got := SanitizeChatUUID(in); got != want {
			t.Errorf("SanitizeChatUUID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRequirePageRedirectsWithoutCredential(t *testing.T) {
	handler := RequirePage(credential.Static(""), "/login")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("protected handler must not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?chatuuid="+chatID, nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "/login?next=") || !strings.Contains(loc, "chatuuid") {
		t.Fatalf("unexpected redirect location %q", loc)
	}
}

func TestRequirePageInjectsContext(t *testing.T) {
	var gotToken credential.Token
	var gotChat string
	handler := RequirePage(credential.Static("tok"), "/login")(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotToken = TokenFromContext(r.Context())
		gotChat = ChatUUIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?chatuuid="+chatID, nil))

	if gotToken != "tok" {
		t.Errorf("expected token in context, got %q", gotToken)
	}
	if gotChat != strings.ToLower(chatID) {
		t.Errorf("expected chat id in context, got %q", gotChat)
	}
}

func TestRequireAPIRejectsWithJSON(t *testing.T) {
	handler := RequireAPI(credential.Static(""))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("protected handler must not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chats/recent", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "credential_missing") {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestInvalidChatUUIDBecomesEmpty(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?chatuuid=../../etc", nil)
	if got := ChatUUIDFromRequest(r); got != "" {
		t.Fatalf("expected empty chat id, got %q", got)
	}
}
