package layer

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/sdi-cli/internal/fetcher"
)

// Load reads a layer from a .shp file or a .zip archive containing one.
// An empty path yields an Absent layer. defaultCRS is used when the
// shapefile has no .prj sidecar. Archives are extracted under workDir.
func Load(path string, kind Kind, defaultCRS, workDir string) (Layer, error) {
	if path == "" {
		return Absent(kind), nil
	}

	shpPath := path
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		dest := filepath.Join(workDir, string(kind))
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return Layer{}, eris.Wrapf(err, "layer: create %s work dir", kind)
		}
		found, err := fetcher.ExtractShapefile(path, dest)
		if err != nil {
			return Layer{}, eris.Wrapf(err, "layer: extract %s archive", kind)
		}
		shpPath = found
	}

	features, err := ReadShapefile(shpPath)
	if err != nil {
		return Layer{}, err
	}

	crs, err := readPRJ(shpPath)
	if err != nil {
		return Layer{}, err
	}
	if crs == "" {
		crs = defaultCRS
	}

	zap.L().Debug("layer: loaded",
		zap.String("kind", string(kind)),
		zap.String("path", shpPath),
		zap.Int("features", len(features)),
	)
	return Present(kind, crs, features), nil
}

// ReadShapefile reads every shape of a shapefile as a go-geom geometry.
// Null and unsupported shapes are skipped; IDs keep the record number.
func ReadShapefile(shpPath string) ([]Feature, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "layer: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	var features []Feature
	var skipped int
	for reader.Next() {
		n, shape := reader.Shape()
		g := ShapeToGeom(shape)
		if g == nil {
			skipped++
			continue
		}
		features = append(features, Feature{ID: n, Geom: g})
	}

	if skipped > 0 {
		zap.L().Debug("layer: skipped shapefile records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}
	return features, nil
}

// ShapeToGeom converts a go-shp shape to a planar XY geometry. It returns
// nil for null or unsupported shapes.
func ShapeToGeom(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})
	case *shp.PointZ:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})
	case *shp.MultiPoint:
		if len(s.Points) == 0 {
			return nil
		}
		return geom.NewMultiPointFlat(geom.XY, flatPoints(s.Points))
	case *shp.PolyLine:
		return linesToGeom(s.Parts, s.Points)
	case *shp.PolyLineZ:
		return linesToGeom(s.Parts, s.Points)
	case *shp.Polygon:
		return ringsToGeom(s.Parts, s.Points)
	case *shp.PolygonZ:
		return ringsToGeom(s.Parts, s.Points)
	default:
		return nil
	}
}

// splitParts slices points into the parts a shapefile record declares.
func splitParts(parts []int32, points []shp.Point) [][]shp.Point {
	if len(points) == 0 {
		return nil
	}
	if len(parts) == 0 {
		return [][]shp.Point{points}
	}
	out := make([][]shp.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || end > int32(len(points)) || start >= end {
			continue
		}
		out = append(out, points[start:end])
	}
	return out
}

// linesToGeom returns a LineString for single-part records and a
// MultiLineString otherwise.
func linesToGeom(parts []int32, points []shp.Point) geom.T {
	var lines []*geom.LineString
	for _, part := range splitParts(parts, points) {
		if len(part) < 2 {
			continue
		}
		lines = append(lines, geom.NewLineStringFlat(geom.XY, flatPoints(part)))
	}
	switch len(lines) {
	case 0:
		return nil
	case 1:
		return lines[0]
	}
	mls := geom.NewMultiLineString(geom.XY)
	for i, ls := range lines {
		if err := mls.Push(ls); err != nil {
			zap.L().Debug("layer: skipping malformed linestring part", zap.Int("part", i), zap.Error(err))
		}
	}
	return mls
}

// ringsToGeom groups shapefile rings into polygons. Clockwise rings are
// outer shells; counter-clockwise rings are holes of the preceding shell.
func ringsToGeom(parts []int32, points []shp.Point) geom.T {
	var polys []*geom.Polygon
	for i, part := range splitParts(parts, points) {
		if len(part) < 4 {
			continue
		}
		ring := geom.NewLinearRingFlat(geom.XY, flatPoints(part))
		if signedArea(part) > 0 && len(polys) > 0 {
			last := polys[len(polys)-1]
			if err := last.Push(ring); err != nil {
				zap.L().Debug("layer: skipping malformed hole", zap.Int("part", i), zap.Error(err))
			}
			continue
		}
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("layer: skipping malformed polygon ring", zap.Int("part", i), zap.Error(err))
			continue
		}
		polys = append(polys, poly)
	}
	switch len(polys) {
	case 0:
		return nil
	case 1:
		return polys[0]
	}
	mp := geom.NewMultiPolygon(geom.XY)
	for i, p := range polys {
		if err := mp.Push(p); err != nil {
			zap.L().Debug("layer: skipping malformed polygon part", zap.Int("part", i), zap.Error(err))
		}
	}
	return mp
}

// signedArea is positive for counter-clockwise rings.
func signedArea(ring []shp.Point) float64 {
	var sum float64
	for i := 0; i+1 < len(ring); i++ {
		sum += ring[i].X*ring[i+1].Y - ring[i+1].X*ring[i].Y
	}
	return sum / 2
}

func flatPoints(points []shp.Point) []float64 {
	flat := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}

// readPRJ returns the WKT of the shapefile's .prj sidecar, or "" if absent.
func readPRJ(shpPath string) (string, error) {
	base := strings.TrimSuffix(shpPath, filepath.Ext(shpPath))
	for _, ext := range []string{".prj", ".PRJ"} {
		data, err := os.ReadFile(base + ext)
		if err == nil {
			return strings.TrimSpace(string(data)), nil
		}
		if !os.IsNotExist(err) {
			return "", eris.Wrapf(err, "layer: read %s", base+ext)
		}
	}
	return "", nil
}
