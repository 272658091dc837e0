package mapview

import (
	"context"
	"errors"
	"testing"

	"github.com/ashureev/geochat/internal/domain"
	"github.com/stretchr/testify/require"
)

const squarePolygon = `{"type":"Polygon","coordinates":[[[115.0,-32.0],[115.5,-32.0],[115.5,-31.5],[115.0,-31.5],[115.0,-32.0]]]}`

func newLoadedController(t *testing.T) (*Controller, *RecordingWidget) {
	t.Helper()
	var widget *RecordingWidget
	factory := func(_ context.Context, container string, opts Options) (Widget, error) {
		widget = NewRecordingWidget(container, opts, nil)
		return widget, nil
	}
	c := NewController(factory, DefaultOptions("pk.test"), nil)
	require.NoError(t, c.Initialize(context.Background(), "map"))
	widget.Load()
	require.True(t, c.Loaded())
	return c, widget
}

func TestInitializeSetsUpWidget(t *testing.T) {
	req := require.New(t)
	c, widget := newLoadedController(t)
	defer c.Dispose()

	req.Equal([]string{"navigation@bottom-left"}, widget.Controls())
	src, ok := widget.Source(SourceID)
	req.True(ok)
	req.Equal([][]domain.Position{{}}, src.Geometry.Coordinates)

	layers := widget.Layers()
	req.Len(layers, 2)
	req.Equal(FillLayerID, layers[0].ID)
	req.Equal(0.3, layers[0].Paint["fill-opacity"])
	req.Equal(OutlineLayerID, layers[1].ID)
	req.Equal(2, layers[1].Paint["line-width"])

	cam := widget.Camera()
	req.Equal(domain.Position{DefaultCenterLon, DefaultCenterLat}, cam.Center)
	req.Equal(float64(DefaultZoom), cam.Zoom)
}

func TestInitializeWithoutTokenIsSkipped(t *testing.T) {
	called := false
	factory := func(context.Context, string, Options) (Widget, error) {
		called = true
		return nil, nil
	}
	c := NewController(factory, DefaultOptions(""), nil)

	require.NoError(t, c.Initialize(context.Background(), "map"))
	require.False(t, called)
	require.NoError(t, c.UpdatePointOfInterest(squarePolygon))
	c.Dispose()
}

func TestInitializeTwiceIsRejected(t *testing.T) {
	c, _ := newLoadedController(t)
	defer c.Dispose()

	require.ErrorIs(t, c.Initialize(context.Background(), "map"), ErrAlreadyInitialized)
}

func TestSourceFailureStopsSetup(t *testing.T) {
	req := require.New(t)
	var widget *RecordingWidget
	factory := func(_ context.Context, container string, opts Options) (Widget, error) {
		widget = NewRecordingWidget(container, opts, nil)
		widget.AddSourceErr = errors.New("style not ready")
		return widget, nil
	}
	c := NewController(factory, DefaultOptions("pk.test"), nil)
	req.NoError(c.Initialize(context.Background(), "map"))

	widget.Load()

	req.False(c.Loaded())
	req.Empty(widget.Layers())
}

func TestUpdatePointOfInterestFitsOuterRing(t *testing.T) {
	req := require.New(t)
	c, widget := newLoadedController(t)
	defer c.Dispose()

	req.NoError(c.UpdatePointOfInterest(squarePolygon))

	fits := widget.Fits()
	req.Len(fits, 1)
	req.Equal(domain.Bounds{MinLon: 115.0, MinLat: -32.0, MaxLon: 115.5, MaxLat: -31.5}, fits[0].Bounds)
	req.Equal(FitOptions{Padding: 50, MaxZoom: 16, Duration: FitDuration}, fits[0].Options)

	want, err := domain.ParsePolygon(squarePolygon)
	req.NoError(err)
	src, _ := widget.Source(SourceID)
	req.Equal(want.Coordinates, src.Geometry.Coordinates)
	req.Equal(domain.GeometryTypePolygon, src.Geometry.Type)
}

func TestUpdatePointOfInterestEmptyRingKeepsState(t *testing.T) {
	req := require.New(t)
	c, widget := newLoadedController(t)
	defer c.Dispose()
	before := widget.Camera()

	req.NoError(c.UpdatePointOfInterest(`{"type":"Polygon","coordinates":[[]]}`))

	req.Empty(widget.Fits())
	req.Equal(before, widget.Camera())
	src, _ := widget.Source(SourceID)
	req.Equal([][]domain.Position{{}}, src.Geometry.Coordinates)
}

func TestUpdatePointOfInterestMalformedKeepsState(t *testing.T) {
	req := require.New(t)
	c, widget := newLoadedController(t)
	defer c.Dispose()
	req.NoError(c.UpdatePointOfInterest(squarePolygon))
	camera := widget.Camera()

	req.Error(c.UpdatePointOfInterest(`{"type":"Polygon","coordinates":[[[115.0,`))
	req.Error(c.UpdatePointOfInterest(`{"type":"LineString","coordinates":[]}`))
	req.ErrorIs(c.UpdatePointOfInterest(`{"type":"Polygon","coordinates":[[[115.0],[115.5,-32.0]]]}`), domain.ErrInvalidPosition)

	req.Len(widget.Fits(), 1)
	req.Equal(camera, widget.Camera())
}

func TestUpdatePointOfInterestRestoresCameraOnDataFailure(t *testing.T) {
	req := require.New(t)
	c, widget := newLoadedController(t)
	defer c.Dispose()
	before := widget.Camera()
	widget.SetSourceDataErr = errors.New("source gone")

	req.Error(c.UpdatePointOfInterest(squarePolygon))

	req.Equal(before, widget.Camera())
	src, _ := widget.Source(SourceID)
	req.Equal([][]domain.Position{{}}, src.Geometry.Coordinates)
}

func TestPendingGeometryAppliedAfterLoad(t *testing.T) {
	req := require.New(t)
	var widget *RecordingWidget
	c := NewController(func(_ context.Context, container string, opts Options) (Widget, error) {
		widget = NewRecordingWidget(container, opts, nil)
		return widget, nil
	}, DefaultOptions("pk.test"), nil)
	defer c.Dispose()

	req.NoError(c.UpdatePointOfInterest(`{"type":"Polygon","coordinates":[[[1,1],[2,2]]]}`))
	req.NoError(c.Initialize(context.Background(), "map"))
	req.NoError(c.UpdatePointOfInterest(squarePolygon))
	req.Empty(widget.Fits())

	widget.Load()

	fits := widget.Fits()
	req.Len(fits, 1)
	req.Equal(115.5, fits[0].Bounds.MaxLon)
}

func TestDisposeIsIdempotent(t *testing.T) {
	req := require.New(t)

	never := NewController(RecordingFactory(nil), DefaultOptions("pk.test"), nil)
	never.Dispose()
	never.Dispose()
	req.ErrorIs(never.Initialize(context.Background(), "map"), ErrDisposed)

	c, widget := newLoadedController(t)
	c.Dispose()
	c.Dispose()

	req.True(widget.Removed())
	req.ErrorIs(c.UpdatePointOfInterest(squarePolygon), ErrDisposed)
	widget.Load()
	req.False(c.Loaded())
}
