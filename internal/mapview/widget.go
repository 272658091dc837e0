// Package mapview drives a map widget that highlights the polygon answering
// the latest chat question.
package mapview

import (
	"context"
	"time"

	"github.com/ashureev/geochat/internal/domain"
)

// Source and layer identifiers registered on the widget.
const (
	SourceID       = "polygon"
	FillLayerID    = "polygon-fill"
	OutlineLayerID = "polygon-outline"
)

// Defaults for the map camera and styling.
const (
	DefaultStyle     = "mapbox://styles/mapbox/satellite-v9"
	DefaultCenterLon = 115.8142283
	DefaultCenterLat = -31.9810844
	DefaultZoom      = 10
	DefaultMinZoom   = 4

	NavigationControl = "navigation"
	ControlPosition   = "bottom-left"

	HighlightColor = "#0080ff"
)

// Camera fit applied when a polygon arrives.
const (
	FitPadding  = 50
	FitMaxZoom  = 16
	FitDuration = 2 * time.Second
)

// Camera is the widget viewport.
type Camera struct {
	Center domain.Position `json:"center"`
	Zoom   float64         `json:"zoom"`
}

// FitOptions controls an animated fit to bounds.
type FitOptions struct {
	Padding  int           `json:"padding"`
	MaxZoom  float64       `json:"maxZoom"`
	Duration time.Duration `json:"-"`
}

// Layer is a styled layer drawn from a source.
type Layer struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Source string         `json:"source"`
	Paint  map[string]any `json:"paint"`
}

// Widget is the map rendering surface. Callbacks registered with OnLoad and
// OnError are never invoked from inside another Widget method.
type Widget interface {
	AddControl(control, position string) error
	OnLoad(fn func())
	OnError(fn func(error))
	AddSource(id string, data domain.Feature) error
	HasSource(id string) bool
	AddLayer(layer Layer) error
	FitBounds(b domain.Bounds, opts FitOptions) error
	SetSourceData(id string, data domain.Feature) error
	Camera() Camera
	JumpTo(c Camera) error
	Remove() error
}

// Options configures a new widget.
type Options struct {
	AccessToken string  `json:"accessToken"`
	Style       string  `json:"style"`
	CenterLon   float64 `json:"centerLon"`
	CenterLat   float64 `json:"centerLat"`
	Zoom        float64 `json:"zoom"`
	MinZoom     float64 `json:"minZoom"`
}

// DefaultOptions returns the stock camera and style with the given token.
func DefaultOptions(token string) Options {
	return Options{
		AccessToken: token,
		Style:       DefaultStyle,
		CenterLon:   DefaultCenterLon,
		CenterLat:   DefaultCenterLat,
		Zoom:        DefaultZoom,
		MinZoom:     DefaultMinZoom,
	}
}

// Factory creates a widget bound to container.
type Factory func(ctx context.Context, container string, opts Options) (Widget, error)

func fillLayer() Layer {
	return Layer{
		ID:     FillLayerID,
		Type:   "fill",
		Source: SourceID,
		Paint: map[string]any{
			"fill-color":   HighlightColor,
			"fill-opacity": 0.3,
		},
	}
}

func outlineLayer() Layer {
	return Layer{
		ID:     OutlineLayerID,
		Type:   "line",
		Source: SourceID,
		Paint: map[string]any{
			"line-color": HighlightColor,
			"line-width": 2,
		},
	}
}
