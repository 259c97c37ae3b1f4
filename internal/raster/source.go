// Package raster samples an elevation surface (the survey DSM) and derives
// rutting depth from it with a hole/ring zonal statistic.
package raster

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geos"
)

// GeoTransform maps pixel/line to georeferenced coordinates using GDAL's
// affine coefficient order.
type GeoTransform [6]float64

// IsNorthUp reports whether the transform has no rotation terms.
func (gt GeoTransform) IsNorthUp() bool {
	return gt[2] == 0 && gt[4] == 0 && gt[1] != 0 && gt[5] != 0
}

// CellCenter returns the coordinates of the center of cell (col, row).
func (gt GeoTransform) CellCenter(col, row int) (x, y float64) {
	return gt[0] + (float64(col)+0.5)*gt[1], gt[3] + (float64(row)+0.5)*gt[5]
}

// Shift returns the transform of a sub-window whose top-left cell is
// (col, row) in gt.
func (gt GeoTransform) Shift(col, row int) GeoTransform {
	out := gt
	out[0] = gt[0] + float64(col)*gt[1]
	out[3] = gt[3] + float64(row)*gt[5]
	return out
}

// Window is a rectangular block of cell values read from a Source.
type Window struct {
	Transform GeoTransform
	Width     int
	Height    int
	Values    []float64
	NoData    float64
	HasNoData bool
}

// Valid returns the value of cell (col, row) and whether it holds data.
func (w *Window) Valid(col, row int) (float64, bool) {
	v := w.Values[row*w.Width+col]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if w.HasNoData && v == w.NoData {
		return 0, false
	}
	return v, true
}

// Source is a single-band elevation raster. Implementations must be safe
// for concurrent use.
type Source interface {
	// CRS identifies the raster's coordinate reference, "" if unknown.
	CRS() string
	// Read returns the cells overlapping bounds. It fails when bounds do
	// not overlap the raster.
	Read(ctx context.Context, bounds *geos.Box2D) (*Window, error)
}

// ErrOutside is returned by Read when the requested bounds miss the raster.
var ErrOutside = eris.New("raster: bounds outside raster extent")

// cellRange converts bounds to a clamped [col0,col1) x [row0,row1) range of a
// width x height raster.
func cellRange(gt GeoTransform, width, height int, b *geos.Box2D) (col0, row0, col1, row1 int, err error) {
	if !gt.IsNorthUp() {
		return 0, 0, 0, 0, eris.New("raster: rotated geotransforms are not supported")
	}
	if b == nil {
		return 0, 0, 0, 0, eris.New("raster: nil bounds")
	}

	ca := (b.MinX - gt[0]) / gt[1]
	cb := (b.MaxX - gt[0]) / gt[1]
	ra := (b.MinY - gt[3]) / gt[5]
	rb := (b.MaxY - gt[3]) / gt[5]

	col0 = clamp(int(math.Floor(math.Min(ca, cb))), 0, width)
	col1 = clamp(int(math.Ceil(math.Max(ca, cb))), 0, width)
	row0 = clamp(int(math.Floor(math.Min(ra, rb))), 0, height)
	row1 = clamp(int(math.Ceil(math.Max(ra, rb))), 0, height)
	if col1 <= col0 || row1 <= row0 {
		return 0, 0, 0, 0, ErrOutside
	}
	return col0, row0, col1, row1, nil
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
