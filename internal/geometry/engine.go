// Package geometry wraps the GEOS overlay engine with the planar operations
// the SDI pipeline needs: line merge, interpolation, flat-capped buffers and
// clipping against analysis polygons.
package geometry

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"github.com/twpayne/go-geos"
)

// bufferQuadSegs is the number of segments used to approximate a quarter
// circle in buffers.
const bufferQuadSegs = 16

// Engine owns the GEOS context every geometry of a run is created in.
// GEOS calls on one context are serialized by go-geos, so an Engine and the
// geometries it creates may be shared read-only across goroutines.
type Engine struct {
	ctx *geos.Context
}

// NewEngine creates an Engine with a fresh GEOS context.
func NewEngine() *Engine {
	return &Engine{ctx: geos.NewContext()}
}

// FromGeom converts a go-geom geometry into a GEOS geometry.
func (e *Engine) FromGeom(g geom.T) (*geos.Geom, error) {
	if g == nil {
		return nil, eris.New("geometry: nil geometry")
	}
	data, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: encode wkb")
	}
	gg, err := e.ctx.NewGeomFromWKB(data)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: decode wkb into geos")
	}
	return gg, nil
}

// FromWKT parses a WKT string. It is mostly used by tests and the CLI.
func (e *Engine) FromWKT(wkt string) (*geos.Geom, error) {
	g, err := e.ctx.NewGeomFromWKT(wkt)
	if err != nil {
		return nil, eris.Wrapf(err, "geometry: parse wkt %q", wkt)
	}
	return g, nil
}

// ToGeom converts a GEOS geometry back into go-geom.
func ToGeom(g *geos.Geom) (geom.T, error) {
	if g == nil {
		return nil, eris.New("geometry: nil geometry")
	}
	t, err := wkb.Unmarshal(g.ToWKB())
	if err != nil {
		return nil, eris.Wrap(err, "geometry: decode wkb from geos")
	}
	return t, nil
}

// Point creates a GEOS point.
func (e *Engine) Point(x, y float64) *geos.Geom {
	return e.ctx.NewPoint([]float64{x, y})
}

// Line creates a GEOS linestring through the given coordinates.
func (e *Engine) Line(coords ...[]float64) *geos.Geom {
	return e.ctx.NewLineString(coords)
}

// Safely runs fn and converts a GEOS panic into an error. go-geos panics
// when the engine reports an exception, which must not take down a batch.
func Safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if rErr, ok := r.(error); ok {
				err = eris.Wrap(rErr, "geometry: geos exception")
				return
			}
			err = eris.New(fmt.Sprintf("geometry: geos exception: %v", r))
		}
	}()
	return fn()
}
