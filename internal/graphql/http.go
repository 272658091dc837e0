package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/geochat/internal/credential"
)

// maxResponseBytes bounds how much of an HTTP response body is read.
const maxResponseBytes = 8 << 20

// HTTPTransport sends queries and mutations as JSON POST requests.
type HTTPTransport struct {
	url    string
	client *http.Client
	creds  credential.Provider
	logger *slog.Logger
}

// NewHTTPTransport creates a request/response transport for endpoint.
func NewHTTPTransport(endpoint string, creds credential.Provider, timeout time.Duration, logger *slog.Logger) *HTTPTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPTransport{
		url:    endpoint,
		client: &http.Client{Timeout: timeout},
		creds:  creds,
		logger: logger,
	}
}

// Submit implements Transport for queries and mutations.
func (t *HTTPTransport) Submit(ctx context.Context, op Operation) (Stream, error) {
	if op.Kind != KindQuery && op.Kind != KindMutation {
		return nil, fmt.Errorf("%w: http cannot carry %s", ErrKindMismatch, op.Kind)
	}

	token, err := t.creds.Token(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(op.payload())
	if err != nil {
		return nil, fmt.Errorf("encode graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", token.Header())

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graphql %s %s: %w", op.Kind, op.Name, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			t.logger.Debug("failed to close graphql response body", "error", closeErr)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read graphql response: %w", err)
	}

	t.logger.Debug("GraphQL request completed",
		"operation", op.Name,
		"kind", op.Kind,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("graphql %s %s: http status %d", op.Kind, op.Name, resp.StatusCode)
		}
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest && len(out.Errors) == 0 {
		return nil, fmt.Errorf("graphql %s %s: http status %d", op.Kind, op.Name, resp.StatusCode)
	}

	return newResultStream(&out), nil
}
