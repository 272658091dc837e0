// Package domain holds the chat and geometry types shared across geochat.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNotPolygon is returned when a geometry payload has a type other than Polygon.
	ErrNotPolygon = errors.New("geometry is not a polygon")
	// ErrInvalidPosition is returned when a coordinate is not a finite lon/lat pair.
	ErrInvalidPosition = errors.New("invalid position")
)

// GeometryTypePolygon is the only geometry type the map annotates.
const GeometryTypePolygon = "Polygon"

// Position is a (longitude, latitude) pair.
type Position [2]float64

// Lon returns the longitude.
func (p Position) Lon() float64 { return p[0] }

// Lat returns the latitude.
func (p Position) Lat() float64 { return p[1] }

// UnmarshalJSON reads a GeoJSON position. It needs at least longitude and
// latitude; an altitude or further members are dropped.
func (p *Position) UnmarshalJSON(data []byte) error {
	var raw []float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPosition, data)
	}
	if len(raw) < 2 {
		return fmt.Errorf("%w: %d numbers in %s", ErrInvalidPosition, len(raw), data)
	}
	*p = Position{raw[0], raw[1]}
	return nil
}

// PolygonGeometry is a GeoJSON polygon: linear rings of positions, the first
// ring being the outer boundary.
type PolygonGeometry struct {
	Type        string       `json:"type"`
	Coordinates [][]Position `json:"coordinates"`
}

// EmptyPolygon returns the degenerate polygon used to seed the map source.
func EmptyPolygon() PolygonGeometry {
	return PolygonGeometry{
		Type:        GeometryTypePolygon,
		Coordinates: [][]Position{{}},
	}
}

// ParsePolygon decodes a serialized polygon geometry.
func ParsePolygon(payload string) (PolygonGeometry, error) {
	var g PolygonGeometry
	if err := json.Unmarshal([]byte(payload), &g); err != nil {
		return PolygonGeometry{}, fmt.Errorf("decode polygon: %w", err)
	}
	if g.Type != GeometryTypePolygon {
		return PolygonGeometry{}, fmt.Errorf("%w: %q", ErrNotPolygon, g.Type)
	}
	for _, ring := range g.Coordinates {
		for _, p := range ring {
			if math.IsNaN(p.Lon()) || math.IsInf(p.Lon(), 0) || math.IsNaN(p.Lat()) || math.IsInf(p.Lat(), 0) {
				return PolygonGeometry{}, ErrInvalidPosition
			}
		}
	}
	return g, nil
}

// OuterRing returns the first ring, or nil when the polygon has none.
func (g PolygonGeometry) OuterRing() []Position {
	if len(g.Coordinates) == 0 {
		return nil
	}
	return g.Coordinates[0]
}

// Bounds is a longitude/latitude rectangle.
type Bounds struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// Extend grows b to cover p.
func (b Bounds) Extend(p Position) Bounds {
	return Bounds{
		MinLon: math.Min(b.MinLon, p.Lon()),
		MinLat: math.Min(b.MinLat, p.Lat()),
		MaxLon: math.Max(b.MaxLon, p.Lon()),
		MaxLat: math.Max(b.MaxLat, p.Lat()),
	}
}

// RingBounds computes the minimal bounds of a ring, seeded with its first
// position. ok is false for an empty ring.
func RingBounds(ring []Position) (b Bounds, ok bool) {
	if len(ring) == 0 {
		return Bounds{}, false
	}
	first := ring[0]
	b = Bounds{MinLon: first.Lon(), MinLat: first.Lat(), MaxLon: first.Lon(), MaxLat: first.Lat()}
	for _, p := range ring[1:] {
		b = b.Extend(p)
	}
	return b, true
}

// Feature is a GeoJSON feature wrapping a polygon.
type Feature struct {
	Type       string          `json:"type"`
	Geometry   PolygonGeometry `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

// NewFeature wraps g in a feature with empty properties.
func NewFeature(g PolygonGeometry) Feature {
	return Feature{
		Type:       "Feature",
		Geometry:   PolygonGeometry{Type: GeometryTypePolygon, Coordinates: g.Coordinates},
		Properties: map[string]any{},
	}
}
