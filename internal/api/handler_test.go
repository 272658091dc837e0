//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ashureev/geochat/internal/domain"
)

func TestJSONWritesCreatedChat(t *testing.T) {
	w := httptest.NewRecorder()

	JSON(w, http.StatusCreated, map[string]any{
		"chat_uuid": "3f2b8c1e-5d4a-4b6e-9c7f-1a2b3c4d5e6f",
		"messages":  []domain.ChatMessage{},
	})

	if w.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %q", ct)
	}

	var got struct {
		ChatUUID string               `json:"chat_uuid"`
		Messages []domain.ChatMessage `json:"messages"`
	}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got.ChatUUID != "3f2b8c1e-5d4a-4b6e-9c7f-1a2b3c4d5e6f" {
		t.Errorf("Expected chat_uuid echoed, got %q", got.ChatUUID)
	}
	if got.Messages == nil {
		t.Error("Expected empty messages array, got null")
	}
}

func TestJSONUnencodableValue(t *testing.T) {
	w := httptest.NewRecorder()

	JSON(w, http.StatusOK, map[string]any{"bad": make(chan int)})

	if !strings.Contains(w.Body.String(), "failed to encode response") {
		t.Errorf("Expected encode failure body, got %q", w.Body.String())
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, http.StatusBadRequest, "invalid_request")

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %q", ct)
	}
	var got map[string]string
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got["error"] != "invalid_request" {
		t.Errorf("Expected error=invalid_request, got %v", got["error"])
	}
}
