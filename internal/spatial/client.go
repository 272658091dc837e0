// Package spatial is the client for the spatial-metadata REST service.
package spatial

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/geochat/internal/credential"
	"github.com/go-playground/validator/v10"
)

// ChatPath is the endpoint that answers chat questions with geometry.
const ChatPath = "/wamex/spatial-metadata/chat/"

const maxBodyBytes = 8 << 20

var validate = validator.New()

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("spatial %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// AskRequest is the body of a chat question.
type AskRequest struct {
	ChatUUID string `json:"chat_uuid" validate:"required,uuid"`
	Question string `json:"question" validate:"required"`
}

// AskResponse is the answer to a chat question. Geometry is a serialized
// polygon and may be empty.
type AskResponse struct {
	Geometry  string `json:"geometry"`
	ChatUUID  string `json:"chat_uuid"`
	Question  string `json:"question"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Client issues authenticated JSON requests to the spatial-metadata service.
type Client struct {
	baseURL string
	http    *http.Client
	creds   credential.Provider
	logger  *slog.Logger
}

// NewClient creates a client rooted at baseURL (for example http://host:8000/api).
func NewClient(baseURL string, creds credential.Provider, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		creds:   creds,
		logger:  logger,
	}
}

// Ask posts a question for a chat session.
func (c *Client) Ask(ctx context.Context, chatUUID, question string) (*AskResponse, error) {
	in := AskRequest{ChatUUID: chatUUID, Question: question}
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("invalid ask request: %w", err)
	}

	var out AskResponse
	if err := c.Post(ctx, ChatPath, in, &out); err != nil {
		return nil, err
	}
	c.logger.Info("Spatial answer received",
		"chat_uuid", chatUUID,
		"status", out.Status,
		"has_geometry", out.Geometry != "")
	return &out, nil
}

// Get fetches path and decodes the JSON body into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post sends in as JSON to path and decodes the JSON body into out.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(body), out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", token.Header())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("spatial %s %s: %w", method, path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close spatial response body", "error", closeErr)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read spatial response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode spatial response: %w", err)
	}
	return nil
}
