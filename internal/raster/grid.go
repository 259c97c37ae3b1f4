package raster

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geos"
)

// Grid is an in-memory Source. Values are row-major, top row first.
type Grid struct {
	Ref       string
	Transform GeoTransform
	Width     int
	Height    int
	Values    []float64
	NoData    float64
	HasNoData bool
}

// NewGrid builds a north-up grid with square cells of size cell whose
// top-left corner is (originX, originY).
func NewGrid(crs string, originX, originY, cell float64, width, height int, values []float64) (*Grid, error) {
	if width <= 0 || height <= 0 || len(values) != width*height {
		return nil, eris.Errorf("raster: grid %dx%d needs %d values, got %d", width, height, width*height, len(values))
	}
	if cell <= 0 {
		return nil, eris.Errorf("raster: invalid cell size %v", cell)
	}
	return &Grid{
		Ref:       crs,
		Transform: GeoTransform{originX, cell, 0, originY, 0, -cell},
		Width:     width,
		Height:    height,
		Values:    values,
	}, nil
}

// WithNoData sets the nodata sentinel.
func (g *Grid) WithNoData(v float64) *Grid {
	g.NoData = v
	g.HasNoData = true
	return g
}

// CRS implements Source.
func (g *Grid) CRS() string { return g.Ref }

// Read implements Source.
func (g *Grid) Read(ctx context.Context, bounds *geos.Box2D) (*Window, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	col0, row0, col1, row1, err := cellRange(g.Transform, g.Width, g.Height, bounds)
	if err != nil {
		return nil, err
	}

	w, h := col1-col0, row1-row0
	values := make([]float64, 0, w*h)
	for r := row0; r < row1; r++ {
		values = append(values, g.Values[r*g.Width+col0:r*g.Width+col1]...)
	}
	return &Window{
		Transform: g.Transform.Shift(col0, row0),
		Width:     w,
		Height:    h,
		Values:    values,
		NoData:    g.NoData,
		HasNoData: g.HasNoData,
	}, nil
}
