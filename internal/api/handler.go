// Package api provides HTTP handlers for the geochat view host.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ashureev/geochat/internal/relay"
	"github.com/ashureev/geochat/internal/store"
	"github.com/go-playground/validator/v10"
)

const maxRequestBytes = 1 << 20

var validate = validator.New()

// Handler provides common handler utilities.
type Handler struct {
	repo     store.Repository
	registry *relay.Registry
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, registry *relay.Registry) *Handler {
	if registry == nil {
		registry = relay.NewRegistry()
	}
	return &Handler{repo: repo, registry: registry}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a bounded JSON body into v and validates it.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validate body: %w", err)
	}
	return nil
}
