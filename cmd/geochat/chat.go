package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/ashureev/geochat/internal/chat"
	"github.com/ashureev/geochat/internal/domain"
	"github.com/ashureev/geochat/internal/identity"
	"github.com/ashureev/geochat/internal/mapview"
	"github.com/ashureev/geochat/internal/transcript"
	"github.com/spf13/cobra"
)

const (
	cliChannel   = "cli"
	cliContainer = "terminal"
	// offlineMapToken stands in for a map token; recording widgets never
	// reach the map service.
	offlineMapToken = "offline"
)

func newChatCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Create, send to, and follow chats",
	}

	cmd.AddCommand(
		newChatNewCmd(load),
		newChatSendCmd(load),
		newChatWatchCmd(load),
		newChatRecentCmd(load),
	)

	return cmd
}

func newChatNewCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Create an empty chat and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}

			chatUUID := a.newID()
			if err := a.chats.CreateSession(cmd.Context(), chatUUID); err != nil {
				return fmt.Errorf("create chat: %w", err)
			}
			if err := a.repo.RecordSession(cmd.Context(), chatUUID, a.now()); err != nil {
				a.logger.Warn("Failed to record chat session", "chat_uuid", chatUUID, "error", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), chatUUID)
			return err
		},
	}
}

func newChatSendCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "send <chat-uuid> <question...>",
		Short: "Ask a question in a chat and show where the answer points",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatUUID, err := chatArg(args[0])
			if err != nil {
				return err
			}
			a, err := load(cmd)
			if err != nil {
				return err
			}
			return runSend(cmd, a, chatUUID, strings.Join(args[1:], " "))
		},
	}
}

func newChatWatchCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <chat-uuid>",
		Short: "Print a chat and follow its updates until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatUUID, err := chatArg(args[0])
			if err != nil {
				return err
			}
			a, err := load(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd, a, chatUUID)
		},
	}
}

func newChatRecentCmd(load loader) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List chats opened from this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("--limit must be > 0")
			}
			a, err := load(cmd)
			if err != nil {
				return err
			}
			records, err := a.repo.RecentSessions(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list recent chats: %w", err)
			}
			renderRecent(cmd.OutOrStdout(), records)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of chats to list")

	return cmd
}

func chatArg(raw string) (string, error) {
	chatUUID := identity.SanitizeChatUUID(raw)
	if chatUUID == "" {
		return "", fmt.Errorf("invalid chat id %q", raw)
	}
	return chatUUID, nil
}

func runSend(cmd *cobra.Command, a *app, chatUUID, question string) error {
	ctx := cmd.Context()
	outcome := &sendOutcome{next: a.conversations}

	var geometry string
	store := chat.NewStore(a.chats, a.asker, chat.Options{
		OnGeometry: func(g string) { geometry = g },
		Transcript: outcome,
		Channel:    cliChannel,
		Now:        a.now,
		NewID:      a.newID,
		Logger:     a.logger,
	})
	defer store.Close()

	if err := store.OpenSession(chatUUID); err != nil {
		return fmt.Errorf("open chat: %w", err)
	}
	snap, err := a.chats.Load(ctx, chatUUID)
	if err != nil {
		return err
	}
	store.ApplySnapshot(snap)

	store.Send(ctx, question)
	if err := outcome.Err(); err != nil {
		return err
	}
	if err := a.repo.RecordSession(ctx, chatUUID, a.now()); err != nil {
		a.logger.Warn("Failed to record chat session", "chat_uuid", chatUUID, "error", err)
	}

	out := cmd.OutOrStdout()
	renderMessages(out, store.Messages())

	if geometry == "" {
		_, err := fmt.Fprintf(out, "No location in answer (status %s)\n", outcome.Status())
		return err
	}
	fit, err := drawGeometry(ctx, a, geometry)
	if err != nil {
		return err
	}
	renderLocation(out, fit)
	return nil
}

// drawGeometry runs the answer through a map controller backed by a
// recording widget and returns the camera fit it produced.
func drawGeometry(ctx context.Context, a *app, geometry string) (mapview.FitCall, error) {
	opts := a.mapOpts
	if opts.AccessToken == "" {
		opts.AccessToken = offlineMapToken
	}

	var widget *mapview.RecordingWidget
	ctl := mapview.NewController(func(_ context.Context, container string, o mapview.Options) (mapview.Widget, error) {
		widget = mapview.NewRecordingWidget(container, o, a.logger)
		return widget, nil
	}, opts, a.logger)
	defer ctl.Dispose()

	if err := ctl.Initialize(ctx, cliContainer); err != nil {
		return mapview.FitCall{}, fmt.Errorf("initialize map: %w", err)
	}
	widget.Load()

	if err := ctl.UpdatePointOfInterest(geometry); err != nil {
		return mapview.FitCall{}, fmt.Errorf("draw location: %w", err)
	}
	fits := widget.Fits()
	if len(fits) == 0 {
		return mapview.FitCall{}, errors.New("answer geometry has no positions")
	}
	return fits[len(fits)-1], nil
}

func runWatch(ctx context.Context, cmd *cobra.Command, a *app, chatUUID string) error {
	out := cmd.OutOrStdout()

	snap, err := a.chats.Load(ctx, chatUUID)
	if err != nil {
		return err
	}
	renderSnapshot(out, snap)

	feed, err := a.chats.Subscribe(ctx, chatUUID)
	if err != nil {
		return fmt.Errorf("follow chat: %w", err)
	}
	defer func() { _ = feed.Close() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case next, ok := <-feed.Snapshots():
			if !ok {
				return feed.Err()
			}
			renderSnapshot(out, next)
		}
	}
}

// sendOutcome records the answer and the first failure of a send while
// passing events on to the conversation log.
type sendOutcome struct {
	next transcript.Logger

	mu     sync.Mutex
	err    error
	status string
}

func (o *sendOutcome) Log(event transcript.Event) {
	o.mu.Lock()
	switch event.EventType {
	case transcript.EventPersistError:
		if o.err == nil {
			o.err = fmt.Errorf("save chat: %s", event.Error)
		}
	case transcript.EventSpatialError:
		if o.err == nil {
			o.err = fmt.Errorf("ask spatial service: %s", event.Error)
		}
	case transcript.EventSpatialAnswer:
		o.status = event.Status
	}
	o.mu.Unlock()

	if o.next != nil {
		o.next.Log(event)
	}
}

// Close is a no-op; the app owns the wrapped logger.
func (o *sendOutcome) Close() error { return nil }

func (o *sendOutcome) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

func (o *sendOutcome) Status() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status == "" {
		return "unknown"
	}
	return o.status
}

var _ transcript.Logger = (*sendOutcome)(nil)

func snapshotLabel(snap domain.Snapshot) string {
	if snap.UpdatedAt.IsZero() {
		return snap.SessionID
	}
	return fmt.Sprintf("%s (updated %s)", snap.SessionID, domain.FormatTimestamp(snap.UpdatedAt))
}
