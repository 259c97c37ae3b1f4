package geometry

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geos"

	"github.com/sells-group/sdi-cli/internal/model"
)

// Path is a single connected, traversable road centerline.
type Path struct {
	engine *Engine
	line   *geos.Geom
	length float64
}

// Merge unions all input line geometries and merges them into one simple
// path. It fails with a *model.DisconnectedNetworkError when the union does
// not reduce to a single connected line.
func (e *Engine) Merge(lines []*geos.Geom) (*Path, error) {
	var merged *geos.Geom
	err := Safely(func() error {
		var union *geos.Geom
		for _, l := range lines {
			if l == nil || l.IsEmpty() {
				continue
			}
			if union == nil {
				union = l.Clone()
				continue
			}
			union = union.Union(l)
		}
		if union == nil {
			return nil
		}
		union = union.UnaryUnion()
		if union.TypeID() == geos.TypeIDLineString {
			merged = union
			return nil
		}
		merged = union.LineMerge()
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "geometry: merge lines")
	}
	if merged == nil || merged.IsEmpty() {
		return nil, &model.DisconnectedNetworkError{Parts: 0}
	}

	switch merged.TypeID() {
	case geos.TypeIDLineString:
	case geos.TypeIDMultiLineString, geos.TypeIDGeometryCollection:
		n := merged.NumGeometries()
		if n != 1 {
			return nil, &model.DisconnectedNetworkError{Parts: n}
		}
		merged = merged.Geometry(0)
		if merged.TypeID() != geos.TypeIDLineString {
			return nil, eris.Errorf("geometry: merged network has type %v, want LineString", merged.TypeID())
		}
	default:
		return nil, eris.Errorf("geometry: road network has type %v, want lines", merged.TypeID())
	}

	return &Path{engine: e, line: merged, length: merged.Length()}, nil
}

// Length is the planar length of the path.
func (p *Path) Length() float64 {
	return p.length
}

// Geom returns the underlying GEOS linestring.
func (p *Path) Geom() *geos.Geom {
	return p.line
}

// Interpolate returns the point at distance d along the path. d is clamped
// to [0, Length].
func (p *Path) Interpolate(d float64) (x, y float64) {
	d = math.Max(0, math.Min(d, p.length))
	pt := p.line.Interpolate(d)
	return pt.X(), pt.Y()
}

// Chord returns the straight line between the points at distances from and
// to along the path.
func (p *Path) Chord(from, to float64) *geos.Geom {
	x0, y0 := p.Interpolate(from)
	x1, y1 := p.Interpolate(to)
	return p.engine.Line([]float64{x0, y0}, []float64{x1, y1})
}
