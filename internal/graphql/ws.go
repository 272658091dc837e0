package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/geochat/internal/credential"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

// Subprotocol is the graphql-ws protocol name negotiated on the socket.
const Subprotocol = "graphql-transport-ws"

const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgPing           = "ping"
	msgPong           = "pong"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
)

var errAckTimeout = errors.New("graphql-ws: no connection_ack")

// wsMessage is a graphql-transport-ws frame.
type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSTransport runs each subscription on its own graphql-transport-ws socket.
type WSTransport struct {
	url        string
	creds      credential.Provider
	ackTimeout time.Duration
	buffer     int
	logger     *slog.Logger
}

// NewWSTransport creates a streaming transport for endpoint (ws:// or wss://).
func NewWSTransport(endpoint string, creds credential.Provider, logger *slog.Logger) *WSTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSTransport{
		url:        endpoint,
		creds:      creds,
		ackTimeout: 10 * time.Second,
		buffer:     16,
		logger:     logger,
	}
}

// Submit implements Transport for subscriptions. The returned stream lives
// until ctx is done, the server completes it, or Close is called.
func (t *WSTransport) Submit(ctx context.Context, op Operation) (Stream, error) {
	if op.Kind != KindSubscription {
		return nil, fmt.Errorf("%w: websocket cannot carry %s", ErrKindMismatch, op.Kind)
	}

	token, err := t.creds.Token(ctx)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", token.Header())
	conn, _, err := websocket.Dial(ctx, t.url, &websocket.DialOptions{
		HTTPHeader:   header,
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		return nil, fmt.Errorf("dial graphql websocket: %w", err)
	}
	conn.SetReadLimit(maxResponseBytes)

	if err := t.handshake(ctx, conn, token); err != nil {
		_ = conn.Close(websocket.StatusProtocolError, "handshake failed")
		return nil, err
	}

	body, err := json.Marshal(op.payload())
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "encode failed")
		return nil, fmt.Errorf("encode subscription: %w", err)
	}

	id := uuid.NewString()
	if err := wsjson.Write(ctx, conn, wsMessage{ID: id, Type: msgSubscribe, Payload: body}); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return nil, fmt.Errorf("send subscribe: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	s := &wsStream{
		streamState: newStreamState(t.buffer),
		conn:        conn,
		id:          id,
		ctx:         streamCtx,
		cancel:      cancel,
		logger:      t.logger.With("operation", op.Name, "subscription_id", id),
	}
	go s.readLoop()

	s.logger.Debug("GraphQL subscription started")
	return s, nil
}

func (t *WSTransport) handshake(ctx context.Context, conn *websocket.Conn, token credential.Token) error {
	initPayload, err := json.Marshal(map[string]any{
		"headers": map[string]string{"Authorization": token.Header()},
	})
	if err != nil {
		return fmt.Errorf("encode connection_init: %w", err)
	}
	if err := wsjson.Write(ctx, conn, wsMessage{Type: msgConnectionInit, Payload: initPayload}); err != nil {
		return fmt.Errorf("send connection_init: %w", err)
	}

	ackCtx, cancel := context.WithTimeout(ctx, t.ackTimeout)
	defer cancel()
	for {
		var msg wsMessage
		if err := wsjson.Read(ackCtx, conn, &msg); err != nil {
			if errors.Is(ackCtx.Err(), context.DeadlineExceeded) {
				return errAckTimeout
			}
			return fmt.Errorf("read connection_ack: %w", err)
		}
		switch msg.Type {
		case msgConnectionAck:
			return nil
		case msgPing:
			if err := wsjson.Write(ackCtx, conn, wsMessage{Type: msgPong}); err != nil {
				return fmt.Errorf("send pong: %w", err)
			}
		default:
			return fmt.Errorf("graphql-ws: unexpected %q before connection_ack", msg.Type)
		}
	}
}

type wsStream struct {
	*streamState
	conn      *websocket.Conn
	id        string
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	logger    *slog.Logger
}

func (s *wsStream) readLoop() {
	for {
		var msg wsMessage
		if err := wsjson.Read(s.ctx, s.conn, &msg); err != nil {
			if s.ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				s.finish(nil)
				return
			}
			s.finish(fmt.Errorf("read subscription: %w", err))
			return
		}

		switch msg.Type {
		case msgNext:
			if msg.ID != s.id {
				continue
			}
			var resp Response
			if err := json.Unmarshal(msg.Payload, &resp); err != nil {
				s.logger.Warn("Dropping undecodable subscription payload", "error", err)
				continue
			}
			if !s.deliver(s.ctx, &resp) {
				s.finish(nil)
				return
			}
		case msgError:
			var errs Errors
			if err := json.Unmarshal(msg.Payload, &errs); err != nil || len(errs) == 0 {
				errs = Errors{{Message: "subscription failed"}}
			}
			s.finish(errs)
			return
		case msgComplete:
			if msg.ID == s.id {
				s.finish(nil)
				return
			}
		case msgPing:
			if err := wsjson.Write(s.ctx, s.conn, wsMessage{Type: msgPong}); err != nil {
				s.logger.Debug("Failed to send pong", "error", err)
			}
		case msgPong:
		default:
			s.logger.Debug("Ignoring graphql-ws message", "type", msg.Type)
		}
	}
}

// Close sends complete, then closes the socket. Errors from an already
// closed socket are logged, not returned.
func (s *wsStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		writeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := wsjson.Write(writeCtx, s.conn, wsMessage{ID: s.id, Type: msgComplete}); err != nil {
			s.logger.Debug("Failed to send complete", "error", err)
		}
		cancel()
		if err := s.conn.Close(websocket.StatusNormalClosure, "subscription closed"); err != nil {
			s.logger.Debug("Failed to close subscription socket", "error", err)
		}
		s.cancel()
	})
	return nil
}
