package mapview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ashureev/geochat/internal/domain"
)

var (
	// ErrAlreadyInitialized is returned when Initialize runs twice.
	ErrAlreadyInitialized = errors.New("map already initialized")
	// ErrDisposed is returned for calls after Dispose.
	ErrDisposed = errors.New("map disposed")
)

// Controller owns one map widget: it sets the widget up, moves the camera to
// incoming polygons and highlights them.
type Controller struct {
	factory Factory
	opts    Options
	logger  *slog.Logger

	mu           sync.Mutex
	initializing bool
	disposed     bool
	loaded       bool
	widget       Widget
	pending      *domain.PolygonGeometry
}

// NewController creates a controller that builds its widget with factory.
func NewController(factory Factory, opts Options, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{factory: factory, opts: opts, logger: logger}
}

// Initialize creates the widget in container. Without an access token the
// map is left blank and nil is returned.
func (c *Controller) Initialize(ctx context.Context, container string) error {
	if c.opts.AccessToken == "" {
		c.logger.Warn("Map access token not configured, skipping map initialization")
		return nil
	}

	c.mu.Lock()
	switch {
	case c.disposed:
		c.mu.Unlock()
		return ErrDisposed
	case c.initializing || c.widget != nil:
		c.mu.Unlock()
		return ErrAlreadyInitialized
	}
	c.initializing = true
	c.mu.Unlock()

	widget, err := c.factory(ctx, container, c.opts)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.initializing = false
	if err != nil {
		c.logger.Error("Failed to create map widget", "container", container, "error", err)
		return fmt.Errorf("create map widget: %w", err)
	}
	if c.disposed {
		if rmErr := widget.Remove(); rmErr != nil {
			c.logger.Debug("Failed to remove map widget", "error", rmErr)
		}
		return ErrDisposed
	}

	if err := widget.AddControl(NavigationControl, ControlPosition); err != nil {
		c.logger.Warn("Failed to add navigation control", "error", err)
	}
	widget.OnLoad(c.handleLoad)
	widget.OnError(func(err error) {
		c.logger.Error("Map widget error", "error", err)
	})
	c.widget = widget

	c.logger.Info("Map widget created", "container", container, "style", c.opts.Style)
	return nil
}

func (c *Controller) handleLoad() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed || c.widget == nil || c.loaded {
		return
	}

	if err := c.widget.AddSource(SourceID, domain.NewFeature(domain.EmptyPolygon())); err != nil {
		c.logger.Error("Failed to add polygon source", "error", err)
		return
	}
	if !c.widget.HasSource(SourceID) {
		c.logger.Error("Polygon source missing after registration", "source", SourceID)
		return
	}
	for _, layer := range []Layer{fillLayer(), outlineLayer()} {
		if err := c.widget.AddLayer(layer); err != nil {
			c.logger.Error("Failed to add layer", "layer", layer.ID, "error", err)
			return
		}
	}
	c.loaded = true
	c.logger.Debug("Map style loaded, polygon layers ready")

	if c.pending != nil {
		g := *c.pending
		c.pending = nil
		if err := c.applyLocked(g); err != nil {
			c.logger.Error("Failed to apply pending polygon", "error", err)
		}
	}
}

// Loaded reports whether the polygon layers are in place.
func (c *Controller) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// UpdatePointOfInterest moves the camera to the outer ring of the polygon
// in payload and highlights it. Malformed payloads and empty rings leave the
// map untouched. Until the map has loaded only the latest polygon is kept.
func (c *Controller) UpdatePointOfInterest(payload string) error {
	g, err := domain.ParsePolygon(payload)
	if err != nil {
		c.logger.Error("Failed to parse point of interest geometry", "error", err)
		return fmt.Errorf("update point of interest: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return ErrDisposed
	}
	if len(g.OuterRing()) == 0 {
		c.logger.Info("Point of interest has an empty ring, keeping current view")
		return nil
	}
	if !c.loaded {
		c.pending = &g
		c.logger.Debug("Map not loaded yet, holding point of interest")
		return nil
	}
	return c.applyLocked(g)
}

func (c *Controller) applyLocked(g domain.PolygonGeometry) error {
	bounds, ok := domain.RingBounds(g.OuterRing())
	if !ok {
		return nil
	}

	previous := c.widget.Camera()
	if err := c.widget.FitBounds(bounds, FitOptions{Padding: FitPadding, MaxZoom: FitMaxZoom, Duration: FitDuration}); err != nil {
		c.restoreCameraLocked(previous)
		return fmt.Errorf("fit bounds: %w", err)
	}
	if err := c.widget.SetSourceData(SourceID, domain.NewFeature(g)); err != nil {
		c.restoreCameraLocked(previous)
		return fmt.Errorf("set polygon data: %w", err)
	}

	c.logger.Info("Point of interest updated",
		"min_lon", bounds.MinLon, "min_lat", bounds.MinLat,
		"max_lon", bounds.MaxLon, "max_lat", bounds.MaxLat)
	return nil
}

func (c *Controller) restoreCameraLocked(previous Camera) {
	if err := c.widget.JumpTo(previous); err != nil {
		c.logger.Error("Failed to restore camera", "error", err)
	}
}

// Dispose removes the widget. Safe to call more than once and before
// Initialize.
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	widget := c.widget
	c.widget = nil
	c.loaded = false
	c.pending = nil
	c.mu.Unlock()

	if widget == nil {
		return
	}
	if err := widget.Remove(); err != nil {
		c.logger.Warn("Failed to remove map widget", "error", err)
	}
}
