// Package relay carries view state to the page over a websocket.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const writeTimeout = 10 * time.Second

// Sender delivers one JSON message to the page.
type Sender interface {
	Send(v any) error
}

// Conn is a page connection. Writes are bounded by a timeout and fail once
// the connection context ends.
type Conn struct {
	id  string
	ws  *websocket.Conn
	ctx context.Context
}

// NewConn wraps an accepted websocket. ctx is the connection lifetime.
func NewConn(ctx context.Context, ws *websocket.Conn) *Conn {
	return &Conn{id: uuid.NewString(), ws: ws, ctx: ctx}
}

// ID identifies the connection in logs and the registry.
func (c *Conn) ID() string { return c.id }

// Send encodes v and writes it as a text frame.
func (c *Conn) Send(v any) error {
	if err := c.ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		if c.ctx.Err() != nil {
			return c.ctx.Err()
		}
		slog.Debug("WebSocket write error", "error", err, "conn_id", c.id)
		return err
	}
	return nil
}

// Read blocks for the next message from the page.
func (c *Conn) Read() ([]byte, error) {
	_, data, err := c.ws.Read(c.ctx)
	return data, err
}

// Close ends the connection with a normal closure.
func (c *Conn) Close(reason string) {
	if err := c.ws.Close(websocket.StatusNormalClosure, reason); err != nil {
		slog.Debug("Failed to close websocket", "error", err, "conn_id", c.id)
	}
}
