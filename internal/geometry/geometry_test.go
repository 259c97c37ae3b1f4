package geometry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geos"

	"github.com/sells-group/sdi-cli/internal/model"
)

func mustWKT(t *testing.T, e *Engine, wkt string) *geos.Geom {
	t.Helper()
	g, err := e.FromWKT(wkt)
	require.NoError(t, err)
	return g
}

func TestMerge_JoinsTouchingLines(t *testing.T) {
	e := NewEngine()
	lines := []*geos.Geom{
		mustWKT(t, e, "LINESTRING (0 0, 10 0)"),
		mustWKT(t, e, "LINESTRING (10 0, 10 10)"),
	}

	path, err := e.Merge(lines)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, path.Length(), 1e-9)
}

func TestMerge_Disconnected(t *testing.T) {
	e := NewEngine()
	lines := []*geos.Geom{
		mustWKT(t, e, "LINESTRING (0 0, 10 0)"),
		mustWKT(t, e, "LINESTRING (20 0, 30 0)"),
	}

	_, err := e.Merge(lines)
	require.Error(t, err)
	var de *model.DisconnectedNetworkError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 2, de.Parts)
}

func TestMerge_Empty(t *testing.T) {
	e := NewEngine()
	_, err := e.Merge(nil)
	require.Error(t, err)
	assert.True(t, model.IsDisconnectedNetwork(err))
}

func TestPathInterpolate_Clamps(t *testing.T) {
	e := NewEngine()
	path, err := e.Merge([]*geos.Geom{mustWKT(t, e, "LINESTRING (0 0, 10 0)")})
	require.NoError(t, err)

	tests := []struct {
		name  string
		d     float64
		wantX float64
	}{
		{"start", 0, 0},
		{"middle", 4, 4},
		{"end", 10, 10},
		{"negative", -5, 0},
		{"beyond end", 25, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := path.Interpolate(tt.d)
			assert.InDelta(t, tt.wantX, x, 1e-9)
			assert.InDelta(t, 0, y, 1e-9)
		})
	}
}

func TestPathChord_IsStraight(t *testing.T) {
	e := NewEngine()
	path, err := e.Merge([]*geos.Geom{mustWKT(t, e, "LINESTRING (0 0, 10 0, 10 10)")})
	require.NoError(t, err)

	chord := path.Chord(5, 15)
	// Straight line from (5,0) to (10,5), not the 10 m path between them.
	assert.InDelta(t, 7.0710678, chord.Length(), 1e-6)
}

func TestBufferFlat_Rectangle(t *testing.T) {
	e := NewEngine()
	poly := BufferFlat(mustWKT(t, e, "LINESTRING (0 0, 10 0)"), 1.5)
	assert.InDelta(t, 30.0, poly.Area(), 1e-9)

	b := poly.Bounds()
	assert.InDelta(t, 0, b.MinX, 1e-9)
	assert.InDelta(t, 10, b.MaxX, 1e-9)
}

func TestOuterRing(t *testing.T) {
	e := NewEngine()
	square := mustWKT(t, e, "POLYGON ((0 0, 1 0, 1 1, 0 1, 0 0))")
	ring := OuterRing(square, 0.3)
	assert.False(t, ring.Intersects(e.Point(0.5, 0.5)))
	assert.True(t, ring.Intersects(e.Point(1.1, 0.5)))
	assert.Greater(t, ring.Area(), 1.2)
}

func TestIntersect(t *testing.T) {
	e := NewEngine()
	segment := mustWKT(t, e, "POLYGON ((0 0, 10 0, 10 3, 0 3, 0 0))")

	t.Run("straddling polygon is clipped", func(t *testing.T) {
		crack := mustWKT(t, e, "POLYGON ((8 1, 12 1, 12 2, 8 2, 8 1))")
		pieces := Intersect(crack, segment)
		require.Len(t, pieces, 1)
		assert.InDelta(t, 2.0, pieces[0].Area, 1e-9)
		assert.InDelta(t, 6.0, pieces[0].Length, 1e-9)
	})

	t.Run("disjoint", func(t *testing.T) {
		crack := mustWKT(t, e, "POLYGON ((20 1, 22 1, 22 2, 20 2, 20 1))")
		assert.Empty(t, Intersect(crack, segment))
	})

	t.Run("touching edge yields nothing", func(t *testing.T) {
		crack := mustWKT(t, e, "POLYGON ((10 1, 12 1, 12 2, 10 2, 10 1))")
		assert.Empty(t, Intersect(crack, segment))
	})

	t.Run("nil input", func(t *testing.T) {
		assert.Empty(t, Intersect(nil, segment))
	})
}

func TestContains(t *testing.T) {
	e := NewEngine()
	segment := mustWKT(t, e, "POLYGON ((0 0, 10 0, 10 3, 0 3, 0 0))")

	assert.True(t, Contains(segment, e.Point(5, 1)))
	assert.True(t, Contains(segment, e.Point(10, 1)), "boundary point counts as inside")
	assert.False(t, Contains(segment, e.Point(11, 1)))
	assert.True(t, Contains(segment, mustWKT(t, e, "POLYGON ((1 1, 2 1, 2 2, 1 2, 1 1))")))
	assert.False(t, Contains(segment, mustWKT(t, e, "POLYGON ((9 1, 11 1, 11 2, 9 2, 9 1))")))
}

func TestGeomRoundTrip(t *testing.T) {
	e := NewEngine()
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		{{0, 0}, {4, 0}, {4, 2}, {0, 2}, {0, 0}},
	})

	g, err := e.FromGeom(poly)
	require.NoError(t, err)
	assert.InDelta(t, 8.0, g.Area(), 1e-9)

	back, err := ToGeom(g)
	require.NoError(t, err)
	_, ok := back.(*geom.Polygon)
	assert.True(t, ok)
}

func TestSafely_RecoversPanic(t *testing.T) {
	err := Safely(func() error {
		panic("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	err = Safely(func() error { return nil })
	assert.NoError(t, err)
}
