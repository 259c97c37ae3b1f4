package raster

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sdi-cli/internal/geometry"
	"github.com/sells-group/sdi-cli/internal/layer"
	"github.com/sells-group/sdi-cli/internal/model"
)

// Defaults of the hole/ring depth scheme.
const (
	DefaultBufferDistance = 0.3
	DefaultUnitScale      = 100
	DefaultMaxDepthCM     = 15
)

// Fallback reasons recorded on RuttingFeature.
const (
	ReasonAlignment = "raster_alignment"
	ReasonUndefined = "undefined_statistic"
)

var errUndefined = errors.New("raster: zonal statistic undefined")

// RuttingFeature is a rutting polygon, in the layer's own CRS, annotated
// with its depth. Fallback is set when the depth was forced to 0.
type RuttingFeature struct {
	layer.Feature
	DepthCM  float64
	Fallback bool
	Reason   string
}

// Extractor derives rutting depth from a DSM: the 10th percentile of cells
// inside the polygon is the rut bottom and the median of a surrounding ring
// is the undisturbed surface.
type Extractor struct {
	Engine         *geometry.Engine
	BufferDistance float64
	UnitScale      float64
	MaxDepthCM     float64
}

// NewExtractor returns an Extractor with the default parameters.
func NewExtractor(e *geometry.Engine) *Extractor {
	return &Extractor{
		Engine:         e,
		BufferDistance: DefaultBufferDistance,
		UnitScale:      DefaultUnitScale,
		MaxDepthCM:     DefaultMaxDepthCM,
	}
}

// Annotate computes a depth for every rutting feature. The returned slice
// has one entry per input feature, in input order, carrying the original
// geometry. Per-feature read or reprojection failures yield a zero depth
// with Fallback set; only context cancellation aborts the call.
func (x *Extractor) Annotate(ctx context.Context, rutting layer.Layer, src Source) ([]RuttingFeature, error) {
	features, ok := rutting.Features()
	if !ok || len(features) == 0 {
		return nil, nil
	}
	if src == nil {
		return nil, eris.New("raster: no elevation source for rutting layer")
	}

	out := make([]RuttingFeature, len(features))
	for i, f := range features {
		out[i] = RuttingFeature{Feature: f}
	}

	sampled, err := layer.Reproject(rutting, src.CRS())
	if err != nil {
		for i := range out {
			x.fallback(&out[i], &model.RasterAlignmentError{Feature: out[i].ID, Err: err})
		}
		return out, nil
	}
	sampledFeatures, _ := sampled.Features()

	for i, f := range sampledFeatures {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "raster: annotate rutting")
		}
		depth, err := x.depth(ctx, f, src)
		switch {
		case err == nil:
			out[i].DepthCM = depth
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return nil, eris.Wrap(err, "raster: annotate rutting")
		case errors.Is(err, errUndefined):
			x.fallback(&out[i], err)
		default:
			x.fallback(&out[i], &model.RasterAlignmentError{Feature: f.ID, Err: err})
		}
	}
	return out, nil
}

func (x *Extractor) fallback(rf *RuttingFeature, err error) {
	rf.DepthCM = 0
	rf.Fallback = true
	rf.Reason = ReasonUndefined
	if model.IsRasterAlignment(err) {
		rf.Reason = ReasonAlignment
	}
	zap.L().Warn("raster: rutting depth fell back to 0",
		zap.Int("feature", rf.ID),
		zap.String("reason", rf.Reason),
		zap.Error(err),
	)
}

// depth samples one feature already expressed in the source CRS.
func (x *Extractor) depth(ctx context.Context, f layer.Feature, src Source) (float64, error) {
	var depth float64
	err := geometry.Safely(func() error {
		hole, err := x.Engine.FromGeom(f.Geom)
		if err != nil {
			return err
		}
		ring := geometry.OuterRing(hole, x.BufferDistance)

		w, err := src.Read(ctx, ring.Bounds())
		if err != nil {
			return err
		}

		zMin, okMin := Percentile(CellValues(x.Engine, w, hole), 10)
		zRef, okRef := Median(InteriorCellValues(x.Engine, w, ring))
		if !okMin || !okRef {
			return errUndefined
		}
		depth = x.Depth(zRef, zMin)
		return nil
	})
	return depth, err
}

// Depth converts a reference and bottom elevation into a clamped depth in
// centimeters.
func (x *Extractor) Depth(zRef, zMin float64) float64 {
	d := (zRef - zMin) * x.UnitScale
	return max(0, min(d, x.MaxDepthCM))
}
