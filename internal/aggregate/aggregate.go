// Package aggregate overlays the distress layers onto segment polygons and
// reduces them to the per-segment scalar metrics the scorer consumes.
package aggregate

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geos"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/sdi-cli/internal/geometry"
	"github.com/sells-group/sdi-cli/internal/layer"
	"github.com/sells-group/sdi-cli/internal/model"
	"github.com/sells-group/sdi-cli/internal/raster"
	"github.com/sells-group/sdi-cli/internal/segment"
)

// Metrics are the distress measurements of one segment.
type Metrics struct {
	PercentCrackedArea float64
	MeanCrackWidthMM   float64
	PotholeCount       int
	MeanRuttingDepthCM float64
	// Fallbacks names metrics that were forced to zero or built from a
	// fallback depth.
	Fallbacks []string
}

type rut struct {
	geom     *geos.Geom
	depth    float64
	fallback bool
}

// Aggregator holds the distress geometries of a run. After New returns it is
// read-only and Segment may be called from several goroutines.
type Aggregator struct {
	cracking []*geos.Geom
	potholes []*geos.Geom
	ruts     []rut

	// owner maps each pothole to the position (in the segments slice given
	// to New) of the lowest-index segment containing it, or -1.
	owner []int
	// unresolved holds potholes whose containment test failed.
	unresolved []*geos.Geom
}

// New converts the distress layers into the engine and resolves pothole
// ownership against segments. Absent layers contribute nothing.
func New(e *geometry.Engine, segments []segment.Segment, cracking, potholes layer.Layer, ruts []raster.RuttingFeature) (*Aggregator, error) {
	a := &Aggregator{}

	var err error
	if a.cracking, err = convert(e, cracking); err != nil {
		return nil, err
	}
	if a.potholes, err = convert(e, potholes); err != nil {
		return nil, err
	}
	for _, r := range ruts {
		g, err := e.FromGeom(r.Geom)
		if err != nil {
			return nil, eris.Wrapf(err, "aggregate: rutting feature %d", r.ID)
		}
		a.ruts = append(a.ruts, rut{geom: g, depth: r.DepthCM, fallback: r.Fallback})
	}

	a.owner = make([]int, len(a.potholes))
	for i, p := range a.potholes {
		a.owner[i] = -1
		err := geometry.Safely(func() error {
			for pos, s := range segments {
				if geometry.Contains(s.Polygon, p) {
					a.owner[i] = pos
					return nil
				}
			}
			return nil
		})
		if err != nil {
			zap.L().Warn("aggregate: pothole containment failed", zap.Int("pothole", i), zap.Error(err))
			a.owner[i] = -1
			a.unresolved = append(a.unresolved, p)
		}
	}
	return a, nil
}

func convert(e *geometry.Engine, l layer.Layer) ([]*geos.Geom, error) {
	features, ok := l.Features()
	if !ok {
		return nil, nil
	}
	out := make([]*geos.Geom, 0, len(features))
	for _, f := range features {
		g, err := e.FromGeom(f.Geom)
		if err != nil {
			return nil, eris.Wrapf(err, "aggregate: %s feature %d", l.Kind, f.ID)
		}
		out = append(out, g)
	}
	return out, nil
}

// Segment computes the metrics of the segment at position pos of the slice
// given to New. A failing metric is zeroed and named in Fallbacks.
func (a *Aggregator) Segment(pos int, s segment.Segment) Metrics {
	var m Metrics
	log := zap.L().With(zap.Int("segment", s.Index))

	if err := geometry.Safely(func() error {
		m.PercentCrackedArea, m.MeanCrackWidthMM = a.crackingMetrics(s)
		return nil
	}); err != nil {
		log.Warn("aggregate: cracking metric fell back to 0", zap.Error(err))
		m.PercentCrackedArea, m.MeanCrackWidthMM = 0, 0
		m.Fallbacks = append(m.Fallbacks, model.MetricCracking)
	}

	var unresolved bool
	if err := geometry.Safely(func() error {
		m.PotholeCount, unresolved = a.potholeCount(pos, s)
		return nil
	}); err != nil || unresolved {
		if err != nil {
			log.Warn("aggregate: pothole metric fell back to 0", zap.Error(err))
			m.PotholeCount = 0
		}
		m.Fallbacks = append(m.Fallbacks, model.MetricPothole)
	}

	var usedFallback bool
	if err := geometry.Safely(func() error {
		m.MeanRuttingDepthCM, usedFallback = a.ruttingDepth(s)
		return nil
	}); err != nil || usedFallback {
		if err != nil {
			log.Warn("aggregate: rutting metric fell back to 0", zap.Error(err))
			m.MeanRuttingDepthCM = 0
		}
		m.Fallbacks = append(m.Fallbacks, model.MetricRutting)
	}
	return m
}

// crackingMetrics returns the cracked share of the segment area in percent
// and the mean width (area / perimeter per clipped piece) in millimeters.
func (a *Aggregator) crackingMetrics(s segment.Segment) (percent, widthMM float64) {
	var area float64
	var widths []float64
	for _, c := range a.cracking {
		for _, piece := range geometry.Intersect(c, s.Polygon) {
			area += piece.Area
			if piece.Length > 0 {
				widths = append(widths, piece.Area/piece.Length)
			}
		}
	}
	if s.Area > 0 {
		percent = min(area/s.Area*100, 100)
	}
	if len(widths) > 0 {
		widthMM = stat.Mean(widths, nil) * 1000
	}
	return percent, widthMM
}

// potholeCount counts potholes owned by the segment. unresolved reports
// whether a pothole with a failed containment test lies near the segment.
func (a *Aggregator) potholeCount(pos int, s segment.Segment) (n int, unresolved bool) {
	for _, o := range a.owner {
		if o == pos {
			n++
		}
	}
	b := s.Polygon.Bounds()
	for _, p := range a.unresolved {
		pb := p.Bounds()
		if pb.MinX <= b.MaxX && b.MinX <= pb.MaxX && pb.MinY <= b.MaxY && b.MinY <= pb.MaxY {
			unresolved = true
			break
		}
	}
	return n, unresolved
}

// ruttingDepth is the mean depth over rutting pieces clipped to the segment,
// 0 when nothing intersects.
func (a *Aggregator) ruttingDepth(s segment.Segment) (depth float64, usedFallback bool) {
	var depths []float64
	for _, r := range a.ruts {
		pieces := geometry.Intersect(r.geom, s.Polygon)
		for range pieces {
			depths = append(depths, r.depth)
			usedFallback = usedFallback || r.fallback
		}
	}
	if len(depths) == 0 {
		return 0, false
	}
	return stat.Mean(depths, nil), usedFallback
}
