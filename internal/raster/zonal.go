package raster

import (
	"math"
	"sort"

	"github.com/twpayne/go-geos"

	"github.com/sells-group/sdi-cli/internal/geometry"
)

// CellValues returns the valid values of the window cells whose centers lie
// inside region or on its boundary. Nodata and non-finite cells are skipped.
func CellValues(e *geometry.Engine, w *Window, region *geos.Geom) []float64 {
	return cellValues(e, w, region, (*geos.PrepGeom).Intersects)
}

// InteriorCellValues is CellValues without the boundary. A cell centered on
// the edge shared by a rut polygon and its reference ring is sampled for the
// rut only.
func InteriorCellValues(e *geometry.Engine, w *Window, region *geos.Geom) []float64 {
	return cellValues(e, w, region, (*geos.PrepGeom).ContainsProperly)
}

func cellValues(e *geometry.Engine, w *Window, region *geos.Geom, hit func(*geos.PrepGeom, *geos.Geom) bool) []float64 {
	if w == nil || region == nil || region.IsEmpty() {
		return nil
	}
	b := region.Bounds()
	prep := region.Prepare()

	var out []float64
	for row := range w.Height {
		for col := range w.Width {
			x, y := w.Transform.CellCenter(col, row)
			if x < b.MinX || x > b.MaxX || y < b.MinY || y > b.MaxY {
				continue
			}
			v, ok := w.Valid(col, row)
			if !ok {
				continue
			}
			if hit(prep, e.Point(x, y)) {
				out = append(out, v)
			}
		}
	}
	return out
}

// Percentile returns the p-th percentile (0..100) of values using linear
// interpolation between closest ranks, the same definition numpy uses by
// default. ok is false for an empty sample.
func Percentile(values []float64, p float64) (v float64, ok bool) {
	if len(values) == 0 || math.IsNaN(p) {
		return 0, false
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	p = math.Max(0, math.Min(100, p))
	h := float64(len(sorted)-1) * p / 100
	lo := int(math.Floor(h))
	hi := int(math.Ceil(h))
	if lo == hi {
		return sorted[lo], true
	}
	return sorted[lo] + (h-float64(lo))*(sorted[hi]-sorted[lo]), true
}

// Median is the 50th percentile; even-sized samples average the middle pair.
func Median(values []float64) (float64, bool) {
	return Percentile(values, 50)
}
