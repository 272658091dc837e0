package mapview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ashureev/geochat/internal/domain"
)

// ErrRemoved is returned by a RecordingWidget after Remove.
var ErrRemoved = errors.New("widget removed")

// FitCall is one recorded FitBounds call.
type FitCall struct {
	Bounds  domain.Bounds
	Options FitOptions
}

// RecordingWidget keeps widget state in memory and logs every command. It
// backs the CLI, where there is no page to draw on, and mirrors the page's
// state for the websocket widget.
type RecordingWidget struct {
	Container string
	Options   Options

	// SetSourceDataErr, when set, makes SetSourceData fail.
	SetSourceDataErr error
	// AddSourceErr, when set, makes AddSource fail.
	AddSourceErr error

	logger *slog.Logger

	mu       sync.Mutex
	controls []string
	sources  map[string]domain.Feature
	layers   []Layer
	fits     []FitCall
	camera   Camera
	onLoad   []func()
	onError  []func(error)
	removed  bool
}

// NewRecordingWidget creates a widget with the camera from opts.
func NewRecordingWidget(container string, opts Options, logger *slog.Logger) *RecordingWidget {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordingWidget{
		Container: container,
		Options:   opts,
		logger:    logger,
		sources:   make(map[string]domain.Feature),
		camera: Camera{
			Center: domain.Position{opts.CenterLon, opts.CenterLat},
			Zoom:   opts.Zoom,
		},
	}
}

// RecordingFactory returns a Factory producing recording widgets.
func RecordingFactory(logger *slog.Logger) Factory {
	return func(_ context.Context, container string, opts Options) (Widget, error) {
		return NewRecordingWidget(container, opts, logger), nil
	}
}

func (w *RecordingWidget) AddControl(control, position string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.removed {
		return ErrRemoved
	}
	w.controls = append(w.controls, control+"@"+position)
	w.logger.Debug("map add control", "control", control, "position", position)
	return nil
}

func (w *RecordingWidget) OnLoad(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onLoad = append(w.onLoad, fn)
}

func (w *RecordingWidget) OnError(fn func(error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = append(w.onError, fn)
}

func (w *RecordingWidget) AddSource(id string, data domain.Feature) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.removed {
		return ErrRemoved
	}
	if w.AddSourceErr != nil {
		return w.AddSourceErr
	}
	if _, exists := w.sources[id]; exists {
		return fmt.Errorf("source %q already exists", id)
	}
	w.sources[id] = data
	w.logger.Debug("map add source", "source", id)
	return nil
}

func (w *RecordingWidget) HasSource(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.sources[id]
	return ok
}

func (w *RecordingWidget) AddLayer(layer Layer) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.removed {
		return ErrRemoved
	}
	if _, ok := w.sources[layer.Source]; !ok {
		return fmt.Errorf("layer %q references unknown source %q", layer.ID, layer.Source)
	}
	w.layers = append(w.layers, layer)
	w.logger.Debug("map add layer", "layer", layer.ID, "type", layer.Type)
	return nil
}

func (w *RecordingWidget) FitBounds(b domain.Bounds, opts FitOptions) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.removed {
		return ErrRemoved
	}
	w.fits = append(w.fits, FitCall{Bounds: b, Options: opts})
	w.camera = Camera{
		Center: domain.Position{(b.MinLon + b.MaxLon) / 2, (b.MinLat + b.MaxLat) / 2},
		Zoom:   opts.MaxZoom,
	}
	w.logger.Info("map fit bounds",
		"min_lon", b.MinLon, "min_lat", b.MinLat, "max_lon", b.MaxLon, "max_lat", b.MaxLat,
		"padding", opts.Padding, "max_zoom", opts.MaxZoom, "duration", opts.Duration)
	return nil
}

func (w *RecordingWidget) SetSourceData(id string, data domain.Feature) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.removed {
		return ErrRemoved
	}
	if w.SetSourceDataErr != nil {
		return w.SetSourceDataErr
	}
	if _, ok := w.sources[id]; !ok {
		return fmt.Errorf("unknown source %q", id)
	}
	w.sources[id] = data
	w.logger.Debug("map set source data", "source", id, "rings", len(data.Geometry.Coordinates))
	return nil
}

func (w *RecordingWidget) Camera() Camera {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.camera
}

func (w *RecordingWidget) JumpTo(c Camera) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.removed {
		return ErrRemoved
	}
	w.camera = c
	w.logger.Debug("map jump", "lon", c.Center.Lon(), "lat", c.Center.Lat(), "zoom", c.Zoom)
	return nil
}

// SyncCamera records a camera change made outside the controller.
func (w *RecordingWidget) SyncCamera(c Camera) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.camera = c
}

// Remove detaches all listeners. Later commands fail with ErrRemoved.
func (w *RecordingWidget) Remove() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.removed = true
	w.onLoad = nil
	w.onError = nil
	w.logger.Debug("map removed", "container", w.Container)
	return nil
}

// Load fires the load listeners, as the page does once the style is ready.
func (w *RecordingWidget) Load() {
	w.mu.Lock()
	listeners := append([]func(){}, w.onLoad...)
	w.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// Fail fires the error listeners.
func (w *RecordingWidget) Fail(err error) {
	w.mu.Lock()
	listeners := append([]func(error){}, w.onError...)
	w.mu.Unlock()
	for _, fn := range listeners {
		fn(err)
	}
}

// Source returns the data of a source.
func (w *RecordingWidget) Source(id string) (domain.Feature, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, ok := w.sources[id]
	return f, ok
}

// Fits returns the recorded FitBounds calls.
func (w *RecordingWidget) Fits() []FitCall {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]FitCall(nil), w.fits...)
}

// Layers returns the added layers in order.
func (w *RecordingWidget) Layers() []Layer {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Layer(nil), w.layers...)
}

// Controls returns the added controls as control@position.
func (w *RecordingWidget) Controls() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.controls...)
}

// Removed reports whether Remove was called.
func (w *RecordingWidget) Removed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.removed
}
