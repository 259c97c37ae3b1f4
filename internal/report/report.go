// Package report renders a completed SDI run into files: an XLSX workbook,
// GeoJSON and GeoPackage layers of the segment polygons, and PNG charts.
package report

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/sdi-cli/internal/geometry"
	"github.com/sells-group/sdi-cli/internal/model"
	"github.com/sells-group/sdi-cli/internal/pipeline"
)

// Format names an export format.
type Format string

const (
	FormatXLSX    Format = "xlsx"
	FormatGeoJSON Format = "geojson"
	FormatGPKG    Format = "gpkg"
	FormatPNG     Format = "png"
)

// File names written by Write.
const (
	XLSXFile     = "sdi_summary.xlsx"
	GeoJSONFile  = "segments.geojson"
	GPKGFile     = "segments.gpkg"
	ChartFile    = "condition_chart.png"
	MapFile      = "condition_map.png"
	defaultTable = "segments"
)

// Report is everything the exporters need from a run.
type Report struct {
	RunID   string
	Survey  model.Survey
	Params  model.RunParams
	Metrics []model.SegmentMetrics
	// Polygons are the segment analysis polygons, index-aligned with
	// Metrics, in Params.ProjectedCRS.
	Polygons []geom.T
	Summary  model.Summary
}

// FromResult builds a Report from a pipeline result.
func FromResult(runID string, survey model.Survey, params model.RunParams, res *pipeline.Result) (*Report, error) {
	polys := make([]geom.T, len(res.Segments))
	for i, s := range res.Segments {
		g, err := geometry.ToGeom(s.Polygon)
		if err != nil {
			return nil, eris.Wrapf(err, "report: segment %d polygon", s.Index)
		}
		polys[i] = g
	}
	return &Report{
		RunID:    runID,
		Survey:   survey,
		Params:   params,
		Metrics:  res.Metrics,
		Polygons: polys,
		Summary:  res.Summary,
	}, nil
}

// Row is a metrics record as presented in exports: distress measures and
// SDI4 rounded to two decimals, SDI1 to SDI3 as computed.
type Row struct {
	Segment            int
	STA                string
	PercentCrackedArea float64
	MeanCrackWidthMM   float64
	PotholeCount       int
	MeanRuttingDepthCM float64
	SDI1               float64
	SDI2               float64
	SDI3               float64
	SDI4               float64
	Condition          string
	Fallbacks          string
}

// Rows converts metrics into presentation rows.
func Rows(metrics []model.SegmentMetrics) []Row {
	out := make([]Row, len(metrics))
	for i, m := range metrics {
		out[i] = Row{
			Segment:            m.Index,
			STA:                m.STA,
			PercentCrackedArea: pipeline.Round2(m.PercentCrackedArea),
			MeanCrackWidthMM:   pipeline.Round2(m.MeanCrackWidthMM),
			PotholeCount:       m.PotholeCount,
			MeanRuttingDepthCM: pipeline.Round2(m.MeanRuttingDepthCM),
			SDI1:               m.SDI1,
			SDI2:               m.SDI2,
			SDI3:               m.SDI3,
			SDI4:               pipeline.Round2(m.SDI4),
			Condition:          string(m.Condition),
			Fallbacks:          strings.Join(m.Fallbacks, ","),
		}
	}
	return out
}

// ParseFormats validates format names.
func ParseFormats(names []string) ([]Format, error) {
	out := make([]Format, 0, len(names))
	for _, n := range names {
		f := Format(strings.ToLower(strings.TrimSpace(n)))
		switch f {
		case FormatXLSX, FormatGeoJSON, FormatGPKG, FormatPNG:
			out = append(out, f)
		default:
			return nil, eris.Errorf("report: unknown export format %q", n)
		}
	}
	return out, nil
}

// Write renders r in every requested format into dir and returns the
// written paths.
func Write(ctx context.Context, r *Report, dir string, formats []Format) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "report: create export dir")
	}

	var written []string
	for _, f := range formats {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		var paths []string
		var err error
		switch f {
		case FormatXLSX:
			p := filepath.Join(dir, XLSXFile)
			paths, err = []string{p}, WriteXLSX(r, p)
		case FormatGeoJSON:
			p := filepath.Join(dir, GeoJSONFile)
			paths, err = []string{p}, WriteGeoJSON(r, p)
		case FormatGPKG:
			p := filepath.Join(dir, GPKGFile)
			paths, err = []string{p}, WriteGPKG(ctx, r, p)
		case FormatPNG:
			chart, mapPath := filepath.Join(dir, ChartFile), filepath.Join(dir, MapFile)
			paths = []string{chart, mapPath}
			if err = WriteChart(r, chart); err == nil {
				err = WriteMap(r, mapPath)
			}
		default:
			err = eris.Errorf("report: unknown export format %q", f)
		}
		if err != nil {
			return written, err
		}
		written = append(written, paths...)
		zap.L().Info("report: exported", zap.String("format", string(f)), zap.Strings("paths", paths))
	}
	return written, nil
}
