// Package pipeline orchestrates an SDI run: it merges the road network,
// segments it, extracts rutting depth, and aggregates and scores every
// segment into an index-ordered result table.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geos"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/sdi-cli/internal/aggregate"
	"github.com/sells-group/sdi-cli/internal/geometry"
	"github.com/sells-group/sdi-cli/internal/layer"
	"github.com/sells-group/sdi-cli/internal/model"
	"github.com/sells-group/sdi-cli/internal/raster"
	"github.com/sells-group/sdi-cli/internal/sdi"
	"github.com/sells-group/sdi-cli/internal/segment"
)

// Options are the run parameters.
type Options struct {
	RoadWidth float64
	Interval  float64
	// ProjectedCRS is the planar CRS all layers are brought into. Empty
	// means the layers are used as given.
	ProjectedCRS   string
	BufferDistance float64
	UnitScale      float64
	MaxDepthCM     float64
	// Concurrency bounds the per-segment workers; values < 1 mean 1.
	Concurrency int
}

// Input holds the layers of one survey. Distress layers may be Absent.
// DSM is required only when the rutting layer has features.
type Input struct {
	Road     layer.Layer
	Cracking layer.Layer
	Potholes layer.Layer
	Rutting  layer.Layer
	DSM      raster.Source
}

// Result is a complete run output. Segments and Metrics share indexes.
type Result struct {
	PathLength float64
	Segments   []segment.Segment
	Metrics    []model.SegmentMetrics
	Ruts       []raster.RuttingFeature
	Summary    model.Summary
	Phases     []model.PhaseResult
}

// Pipeline runs SDI analyses with fixed options.
type Pipeline struct {
	opts Options
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	if opts.BufferDistance == 0 {
		opts.BufferDistance = raster.DefaultBufferDistance
	}
	if opts.UnitScale == 0 {
		opts.UnitScale = raster.DefaultUnitScale
	}
	if opts.MaxDepthCM == 0 {
		opts.MaxDepthCM = raster.DefaultMaxDepthCM
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Pipeline{opts: opts}
}

// Params returns the segmentation parameters.
func (p *Pipeline) Params() segment.Params {
	return segment.Params{RoadWidth: p.opts.RoadWidth, Interval: p.opts.Interval}
}

// Run executes the whole pipeline. It returns either a complete result or
// an error, never a partial table.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	result := &Result{}
	track := func(name string, fn func() (string, error)) error {
		start := time.Now()
		detail, err := fn()
		d := time.Since(start).Milliseconds()
		if err != nil {
			zap.L().Error("pipeline: phase failed", zap.String("phase", name), zap.Int64("duration_ms", d), zap.Error(err))
			return err
		}
		zap.L().Info("pipeline: phase complete", zap.String("phase", name), zap.Int64("duration_ms", d), zap.String("detail", detail))
		result.Phases = append(result.Phases, model.PhaseResult{Name: name, Duration: d, Detail: detail})
		return nil
	}

	engine := geometry.NewEngine()

	if err := track("project", func() (string, error) {
		return "", p.project(&in)
	}); err != nil {
		return nil, err
	}

	var path *geometry.Path
	if err := track("merge", func() (string, error) {
		var err error
		path, err = mergeRoad(engine, in.Road)
		if err != nil {
			return "", err
		}
		result.PathLength = path.Length()
		return formatFloat(path.Length()) + " m", nil
	}); err != nil {
		return nil, err
	}

	if err := track("segment", func() (string, error) {
		var err error
		result.Segments, err = segment.Build(path, p.Params())
		return formatInt(len(result.Segments)) + " segments", err
	}); err != nil {
		return nil, err
	}

	if in.Rutting.Len() > 0 {
		if err := track("depth", func() (string, error) {
			x := &raster.Extractor{
				Engine:         engine,
				BufferDistance: p.opts.BufferDistance,
				UnitScale:      p.opts.UnitScale,
				MaxDepthCM:     p.opts.MaxDepthCM,
			}
			var err error
			result.Ruts, err = x.Annotate(ctx, in.Rutting, in.DSM)
			return formatInt(len(result.Ruts)) + " features", err
		}); err != nil {
			return nil, err
		}
	}

	if err := track("aggregate", func() (string, error) {
		var err error
		result.Metrics, err = p.aggregate(ctx, engine, result.Segments, in, result.Ruts)
		return formatInt(len(result.Metrics)) + " rows", err
	}); err != nil {
		return nil, err
	}

	result.Summary = Summarize(result.Metrics, result.Ruts, p.opts.Interval, result.PathLength)
	return result, nil
}

func (p *Pipeline) validate() error {
	if err := p.Params().Validate(); err != nil {
		return err
	}
	for _, c := range []struct {
		name string
		v    float64
	}{
		{"buffer_distance", p.opts.BufferDistance},
		{"unit_scale", p.opts.UnitScale},
		{"max_depth_cm", p.opts.MaxDepthCM},
	} {
		if !(c.v > 0) {
			return &model.InvalidParameterError{Name: c.name, Value: c.v}
		}
	}
	return nil
}

// project brings every present layer into the projected CRS.
func (p *Pipeline) project(in *Input) error {
	if p.opts.ProjectedCRS == "" {
		return nil
	}
	for _, l := range []*layer.Layer{&in.Road, &in.Cracking, &in.Potholes, &in.Rutting} {
		out, err := layer.Reproject(*l, p.opts.ProjectedCRS)
		if err != nil {
			return eris.Wrapf(err, "pipeline: project %s layer", l.Kind)
		}
		*l = out
	}
	return nil
}

func mergeRoad(e *geometry.Engine, road layer.Layer) (*geometry.Path, error) {
	features, _ := road.Features()
	lines := make([]*geos.Geom, 0, len(features))
	for _, f := range features {
		g, err := e.FromGeom(f.Geom)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: road feature %d", f.ID)
		}
		lines = append(lines, g)
	}
	var path *geometry.Path
	err := geometry.Safely(func() error {
		var err error
		path, err = e.Merge(lines)
		return err
	})
	if err != nil {
		return nil, err
	}
	return path, nil
}

// aggregate is a bounded parallel map over segments. Each worker writes
// only its own slot, so the table comes back in segment order.
func (p *Pipeline) aggregate(ctx context.Context, e *geometry.Engine, segs []segment.Segment, in Input, ruts []raster.RuttingFeature) ([]model.SegmentMetrics, error) {
	agg, err := aggregate.New(e, segs, in.Cracking, in.Potholes, ruts)
	if err != nil {
		return nil, err
	}

	out := make([]model.SegmentMetrics, len(segs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)

	for pos, s := range segs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m := agg.Segment(pos, s)
			score := sdi.Compute(sdi.Inputs{
				PercentCrackedArea: m.PercentCrackedArea,
				MeanCrackWidthMM:   m.MeanCrackWidthMM,
				PotholeCount:       m.PotholeCount,
				MeanRuttingDepthCM: m.MeanRuttingDepthCM,
			})
			out[pos] = model.SegmentMetrics{
				Index:              s.Index,
				STA:                s.STA,
				StartM:             s.Start,
				EndM:               s.End,
				AreaM2:             s.Area,
				PercentCrackedArea: m.PercentCrackedArea,
				MeanCrackWidthMM:   m.MeanCrackWidthMM,
				PotholeCount:       m.PotholeCount,
				MeanRuttingDepthCM: m.MeanRuttingDepthCM,
				SDI1:               score.SDI1,
				SDI2:               score.SDI2,
				SDI3:               score.SDI3,
				SDI4:               score.SDI4,
				Condition:          score.Condition,
				Fallbacks:          m.Fallbacks,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: aggregate segments")
	}
	return out, nil
}
