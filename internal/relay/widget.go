package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ashureev/geochat/internal/domain"
	"github.com/ashureev/geochat/internal/mapview"
)

// MessageTypeMap tags outbound map commands.
const MessageTypeMap = "map"

// Map command ops understood by the page.
const (
	OpCreate        = "create"
	OpAddControl    = "add_control"
	OpAddSource     = "add_source"
	OpAddLayer      = "add_layer"
	OpFitBounds     = "fit_bounds"
	OpSetSourceData = "set_source_data"
	OpJumpTo        = "jump_to"
	OpRemove        = "remove"
)

// Command is a map instruction for the page.
type Command struct {
	Type      string              `json:"type"`
	Op        string              `json:"op"`
	Container string              `json:"container,omitempty"`
	Options   *mapview.Options    `json:"options,omitempty"`
	Control   string              `json:"control,omitempty"`
	Position  string              `json:"position,omitempty"`
	Source    string              `json:"source,omitempty"`
	Data      *domain.Feature     `json:"data,omitempty"`
	Layer     *mapview.Layer      `json:"layer,omitempty"`
	Bounds    *[2]domain.Position `json:"bounds,omitempty"`
	Fit       *FitOptions         `json:"fit,omitempty"`
	Camera    *mapview.Camera     `json:"camera,omitempty"`
}

// FitOptions is the page form of mapview.FitOptions.
type FitOptions struct {
	Padding  int     `json:"padding"`
	MaxZoom  float64 `json:"maxZoom"`
	Duration int64   `json:"duration"`
}

// Widget is a mapview.Widget drawn by the page. It mirrors the commanded
// state locally so the controller can query it without a round trip.
type Widget struct {
	mirror *mapview.RecordingWidget
	sender Sender
	logger *slog.Logger
}

// Page hands out widgets drawn on one page and routes the page's map events
// to the current one.
type Page struct {
	sender Sender
	logger *slog.Logger

	mu     sync.Mutex
	widget *Widget
}

// NewPage creates a page that sends map commands through sender.
func NewPage(sender Sender, logger *slog.Logger) *Page {
	if logger == nil {
		logger = slog.Default()
	}
	return &Page{sender: sender, logger: logger}
}

// Factory returns a mapview.Factory creating widgets on the page.
func (p *Page) Factory() mapview.Factory {
	return func(_ context.Context, container string, opts mapview.Options) (mapview.Widget, error) {
		w := &Widget{
			mirror: mapview.NewRecordingWidget(container, opts, p.logger),
			sender: p.sender,
			logger: p.logger,
		}
		if err := w.send(Command{Op: OpCreate, Container: container, Options: &opts}); err != nil {
			return nil, fmt.Errorf("create page map: %w", err)
		}
		p.mu.Lock()
		p.widget = w
		p.mu.Unlock()
		return w, nil
	}
}

func (p *Page) current() *Widget {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.widget
}

// Loaded is called when the page reports the style has loaded.
func (p *Page) Loaded() {
	if w := p.current(); w != nil {
		w.mirror.Load()
	}
}

// Failed is called when the page reports a map error.
func (p *Page) Failed(message string) {
	if w := p.current(); w != nil {
		w.mirror.Fail(fmt.Errorf("page map: %s", message))
	}
}

// Moved records a camera change made on the page.
func (p *Page) Moved(c mapview.Camera) {
	if w := p.current(); w != nil {
		w.mirror.SyncCamera(c)
	}
}

func (w *Widget) send(cmd Command) error {
	cmd.Type = MessageTypeMap
	if err := w.sender.Send(cmd); err != nil {
		return fmt.Errorf("send %s: %w", cmd.Op, err)
	}
	return nil
}

func (w *Widget) AddControl(control, position string) error {
	if err := w.mirror.AddControl(control, position); err != nil {
		return err
	}
	return w.send(Command{Op: OpAddControl, Control: control, Position: position})
}

func (w *Widget) OnLoad(fn func())       { w.mirror.OnLoad(fn) }
func (w *Widget) OnError(fn func(error)) { w.mirror.OnError(fn) }

func (w *Widget) AddSource(id string, data domain.Feature) error {
	if err := w.mirror.AddSource(id, data); err != nil {
		return err
	}
	return w.send(Command{Op: OpAddSource, Source: id, Data: &data})
}

func (w *Widget) HasSource(id string) bool { return w.mirror.HasSource(id) }

func (w *Widget) AddLayer(layer mapview.Layer) error {
	if err := w.mirror.AddLayer(layer); err != nil {
		return err
	}
	return w.send(Command{Op: OpAddLayer, Layer: &layer})
}

func (w *Widget) FitBounds(b domain.Bounds, opts mapview.FitOptions) error {
	if err := w.mirror.FitBounds(b, opts); err != nil {
		return err
	}
	bounds := [2]domain.Position{{b.MinLon, b.MinLat}, {b.MaxLon, b.MaxLat}}
	return w.send(Command{
		Op:     OpFitBounds,
		Bounds: &bounds,
		Fit: &FitOptions{
			Padding:  opts.Padding,
			MaxZoom:  opts.MaxZoom,
			Duration: opts.Duration.Milliseconds(),
		},
	})
}

func (w *Widget) SetSourceData(id string, data domain.Feature) error {
	if err := w.mirror.SetSourceData(id, data); err != nil {
		return err
	}
	return w.send(Command{Op: OpSetSourceData, Source: id, Data: &data})
}

func (w *Widget) Camera() mapview.Camera { return w.mirror.Camera() }

func (w *Widget) JumpTo(c mapview.Camera) error {
	if err := w.mirror.JumpTo(c); err != nil {
		return err
	}
	return w.send(Command{Op: OpJumpTo, Camera: &c})
}

// Remove detaches listeners and tells the page to drop its map.
func (w *Widget) Remove() error {
	if err := w.mirror.Remove(); err != nil {
		return err
	}
	if err := w.send(Command{Op: OpRemove}); err != nil {
		w.logger.Debug("Page map already gone", "error", err)
	}
	return nil
}
