package layer

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-proj/v10"
)

// Transformer reprojects go-geom geometries between two coordinate
// reference systems. A Transformer is not safe for concurrent use.
type Transformer struct {
	pj *proj.PJ
}

// NewTransformer builds a transformation from src to dst. CRS values may be
// authority codes ("EPSG:32749") or WKT. Axis order is normalized to x/east
// first so that geographic CRSs take longitude before latitude.
func NewTransformer(src, dst string) (*Transformer, error) {
	pj, err := proj.NewCRSToCRS(src, dst, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "layer: create transform %s -> %s", abbreviate(src), abbreviate(dst))
	}
	normalized, err := pj.NormalizeForVisualization()
	pj.Destroy()
	if err != nil {
		return nil, eris.Wrap(err, "layer: normalize transform axis order")
	}
	return &Transformer{pj: normalized}, nil
}

// Transform returns a reprojected copy of g.
func (t *Transformer) Transform(g geom.T) (geom.T, error) {
	c, err := cloneGeom(g)
	if err != nil {
		return nil, err
	}
	if err := t.pj.ForwardFlatCoords(c.FlatCoords(), c.Stride(), -1, -1); err != nil {
		return nil, eris.Wrap(err, "layer: transform coordinates")
	}
	return c, nil
}

// Close releases the underlying PROJ object.
func (t *Transformer) Close() {
	if t.pj != nil {
		t.pj.Destroy()
		t.pj = nil
	}
}

// Reproject returns l with every feature transformed into dst. Layers that
// are absent, empty or already in dst are returned unchanged.
func Reproject(l Layer, dst string) (Layer, error) {
	features, ok := l.Features()
	if !ok || len(features) == 0 || SameCRS(l.CRS, dst) {
		return l, nil
	}

	t, err := NewTransformer(l.CRS, dst)
	if err != nil {
		return Layer{}, err
	}
	defer t.Close()

	out := make([]Feature, 0, len(features))
	for _, f := range features {
		g, err := t.Transform(f.Geom)
		if err != nil {
			return Layer{}, eris.Wrapf(err, "layer: reproject %s feature %d", l.Kind, f.ID)
		}
		out = append(out, Feature{ID: f.ID, Geom: g})
	}
	return Present(l.Kind, dst, out), nil
}

func cloneGeom(g geom.T) (geom.T, error) {
	switch g := g.(type) {
	case *geom.Point:
		return g.Clone(), nil
	case *geom.MultiPoint:
		return g.Clone(), nil
	case *geom.LineString:
		return g.Clone(), nil
	case *geom.MultiLineString:
		return g.Clone(), nil
	case *geom.Polygon:
		return g.Clone(), nil
	case *geom.MultiPolygon:
		return g.Clone(), nil
	default:
		return nil, eris.Errorf("layer: unsupported geometry %T", g)
	}
}

// abbreviate keeps WKT definitions readable in error messages.
func abbreviate(crs string) string {
	if len(crs) > 48 {
		return crs[:45] + "..."
	}
	return crs
}
