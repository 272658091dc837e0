// Package view runs one page connection: a chat session store and a map
// controller wired to the page over a websocket.
package view

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/geochat/internal/chat"
	"github.com/ashureev/geochat/internal/domain"
	"github.com/ashureev/geochat/internal/identity"
	"github.com/ashureev/geochat/internal/mapview"
	"github.com/ashureev/geochat/internal/relay"
	"github.com/ashureev/geochat/internal/transcript"
)

// MapContainer is the element id the page draws the map into.
const MapContainer = "map"

const actionQueueSize = 8

// Conn is the page side of a view.
type Conn interface {
	relay.Sender
	relay.Peer
	Read() ([]byte, error)
}

// History remembers the chat sessions opened from this host.
type History interface {
	RecordSession(ctx context.Context, chatUUID string, openedAt time.Time) error
}

// Deps are the collaborators shared by all views.
type Deps struct {
	Persistence chat.Persistence
	Asker       chat.Asker
	History     History
	Registry    *relay.Registry
	Transcript  transcript.Logger
	MapOptions  mapview.Options
	Logger      *slog.Logger
}

// inbound is a message from the page.
type inbound struct {
	Type     string    `json:"type"`
	Content  string    `json:"content,omitempty"`
	ChatUUID string    `json:"chat_uuid,omitempty"`
	Message  string    `json:"message,omitempty"`
	Center   []float64 `json:"center,omitempty"`
	Zoom     float64   `json:"zoom,omitempty"`
	chat.ScrollPosition
}

type messagesMessage struct {
	Type     string               `json:"type"`
	ChatUUID string               `json:"chat_uuid"`
	Messages []domain.ChatMessage `json:"messages"`
	Reason   chat.Reason          `json:"reason"`
	Scroll   *scrollDirective     `json:"scroll,omitempty"`
}

type scrollDirective struct {
	Behavior string `json:"behavior"`
}

type navigateMessage struct {
	Type     string `json:"type"`
	ChatUUID string `json:"chat_uuid"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// View is one connected page.
type View struct {
	deps   Deps
	conn   Conn
	page   *relay.Page
	mapCtl *mapview.Controller
	store  *chat.Store
	logger *slog.Logger

	follower chat.Follower
	actions  chan func(context.Context)

	mu          sync.Mutex
	chatUUID    string
	lastVersion uint64
}

// New builds a view for conn. Nothing is sent until Run.
func New(deps Deps, conn Conn) *View {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Registry == nil {
		deps.Registry = relay.NewRegistry()
	}
	logger := deps.Logger.With("conn_id", conn.ID())
	v := &View{
		deps:    deps,
		conn:    conn,
		page:    relay.NewPage(conn, logger),
		logger:  logger,
		actions: make(chan func(context.Context), actionQueueSize),
	}
	v.mapCtl = mapview.NewController(v.page.Factory(), deps.MapOptions, logger)
	v.store = chat.NewStore(deps.Persistence, deps.Asker, chat.Options{
		OnChange:   v.publish,
		OnGeometry: v.showGeometry,
		OnNavigate: v.navigate,
		Transcript: deps.Transcript,
		Channel:    "view_ws",
		Logger:     logger,
	})
	return v
}

// Run serves the page until the connection ends or ctx is cancelled. The
// store and the map are torn down before Run returns.
func (v *View) Run(ctx context.Context, chatUUID string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	v.mu.Lock()
	v.chatUUID = chatUUID
	v.mu.Unlock()
	v.deps.Registry.Register(chatUUID, v.conn)
	defer func() {
		v.deps.Registry.Unregister(v.Active(), v.conn)
	}()
	defer v.mapCtl.Dispose()
	defer v.store.Close()

	if err := v.mapCtl.Initialize(ctx, MapContainer); err != nil {
		v.logger.Error("Map initialization failed", "error", err)
	}
	v.open(ctx, chatUUID)

	go v.work(ctx)
	v.readLoop(ctx)
	v.logger.Info("View ended", "chat_uuid", v.Active())
}

// Active returns the chat session the view shows.
func (v *View) Active() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.chatUUID
}

// work runs chat actions one at a time, off the read loop. Requests are not
// cancelled when the page goes away; the store drops late results.
func (v *View) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case act := <-v.actions:
			act(context.WithoutCancel(ctx))
		}
	}
}

func (v *View) enqueue(ctx context.Context, act func(context.Context)) {
	select {
	case v.actions <- act:
	case <-ctx.Done():
	}
}

//nolint:gocognit // Message dispatch covers chat, scroll and map events.
func (v *View) readLoop(ctx context.Context) {
	for {
		data, err := v.conn.Read()
		if err != nil {
			if ctx.Err() == nil {
				v.logger.Debug("View connection closed", "error", err)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			v.logger.Warn("Ignoring malformed view message", "error", err)
			continue
		}

		switch msg.Type {
		case "send":
			content := msg.Content
			v.enqueue(ctx, func(ctx context.Context) { v.store.Send(ctx, content) })
		case "new_chat":
			v.enqueue(ctx, func(ctx context.Context) {
				if _, err := v.store.CreateSession(ctx); err != nil {
					v.reportError("create_chat_failed")
				}
			})
		case "open":
			chatUUID := identity.SanitizeChatUUID(msg.ChatUUID)
			v.enqueue(ctx, func(ctx context.Context) { v.switchTo(ctx, chatUUID) })
		case "scroll":
			v.follower.Observe(msg.ScrollPosition)
		case "map_loaded":
			v.page.Loaded()
		case "map_error":
			v.page.Failed(msg.Message)
		case "map_moved":
			if len(msg.Center) == 2 {
				v.page.Moved(mapview.Camera{Center: domain.Position{msg.Center[0], msg.Center[1]}, Zoom: msg.Zoom})
			}
		case "ping":
			if err := v.conn.Send(map[string]string{"type": "pong"}); err != nil {
				v.logger.Debug("Failed to send pong", "error", err)
			}
		default:
			v.logger.Debug("Unknown view message", "type", msg.Type)
		}
	}
}

func (v *View) open(ctx context.Context, chatUUID string) {
	if err := v.store.OpenSession(chatUUID); err != nil {
		v.reportError("subscribe_failed")
		return
	}
	v.remember(ctx, chatUUID)
}

func (v *View) switchTo(ctx context.Context, chatUUID string) {
	v.mu.Lock()
	from := v.chatUUID
	v.chatUUID = chatUUID
	v.mu.Unlock()
	v.deps.Registry.Move(from, chatUUID, v.conn)
	v.open(ctx, chatUUID)
}

func (v *View) remember(ctx context.Context, chatUUID string) {
	if chatUUID == "" || v.deps.History == nil {
		return
	}
	if err := v.deps.History.RecordSession(ctx, chatUUID, time.Now()); err != nil {
		v.logger.Warn("Failed to record chat session", "chat_uuid", chatUUID, "error", err)
	}
}

// publish pushes a list change to the page, dropping changes older than the
// last one sent.
func (v *View) publish(change chat.Change) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if change.Version <= v.lastVersion {
		return
	}
	v.lastVersion = change.Version

	msg := messagesMessage{
		Type:     "messages",
		ChatUUID: change.ChatUUID,
		Messages: change.Messages,
		Reason:   change.Reason,
	}
	if msg.Messages == nil {
		msg.Messages = []domain.ChatMessage{}
	}
	if scroll, behavior := v.follower.OnChange(change.Reason); scroll {
		msg.Scroll = &scrollDirective{Behavior: behavior}
	}
	if err := v.conn.Send(msg); err != nil {
		v.logger.Debug("Failed to send messages", "error", err)
	}
}

func (v *View) showGeometry(geometry string) {
	if err := v.mapCtl.UpdatePointOfInterest(geometry); err != nil {
		v.logger.Warn("Point of interest not shown", "error", err)
	}
}

// navigate reflects a newly created session in the page's chatuuid parameter.
func (v *View) navigate(chatUUID string) {
	v.mu.Lock()
	from := v.chatUUID
	v.chatUUID = chatUUID
	v.mu.Unlock()

	v.deps.Registry.Move(from, chatUUID, v.conn)
	if err := v.conn.Send(navigateMessage{Type: "navigate", ChatUUID: chatUUID}); err != nil {
		v.logger.Debug("Failed to send navigate", "error", err)
	}
	v.remember(context.Background(), chatUUID)
}

func (v *View) reportError(code string) {
	if err := v.conn.Send(errorMessage{Type: "error", Error: code}); err != nil {
		v.logger.Debug("Failed to send error", "error", err)
	}
}
