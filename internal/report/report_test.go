package report

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/sdi-cli/internal/model"
)

func rect(x0, y0, x1, y1 float64) geom.T {
	return geom.NewPolygonFlat(geom.XY, []float64{x0, y0, x1, y0, x1, y1, x0, y1, x0, y0}, []int{10})
}

func sampleReport(crs string) *Report {
	return &Report{
		RunID:  "run-1",
		Survey: model.Survey{Location: "Jl. Raya Km 12", STARange: "0+000 - 0+250", Surveyor: "Tim A", Date: "2024-05-01", Agency: "Dinas PU"},
		Params: model.RunParams{RoadWidthM: 3, SegmentIntervalM: 100, ProjectedCRS: crs, BufferDistance: 0.3, UnitScale: 100},
		Metrics: []model.SegmentMetrics{
			{Index: 1, STA: "000+000 - 100+000", StartM: 0, EndM: 100, AreaM2: 300, PercentCrackedArea: 6.66666, MeanCrackWidthMM: 833.3333, SDI1: 5, SDI2: 10, SDI3: 10, SDI4: 10, Condition: model.ConditionGood},
			{Index: 2, STA: "100+000 - 200+000", StartM: 100, EndM: 200, AreaM2: 300, PotholeCount: 12, SDI3: 75, SDI4: 77.499, Condition: model.ConditionFair, Fallbacks: []string{model.MetricRutting}},
			{Index: 3, STA: "200+000 - 250+000", StartM: 200, EndM: 250, AreaM2: 150, MeanRuttingDepthCM: 4.005, SDI4: 10, Condition: model.ConditionGood},
		},
		Polygons: []geom.T{
			rect(500000, 9226000, 500100, 9226003),
			rect(500100, 9226000, 500200, 9226003),
			rect(500200, 9226000, 500250, 9226003),
		},
		Summary: model.Summary{SegmentCount: 3, MeasuredLengthM: 300, MeanSDI: 32.5, DominantCondition: model.ConditionGood},
	}
}

func TestRows_Rounding(t *testing.T) {
	rows := Rows(sampleReport("").Metrics)
	require.Len(t, rows, 3)
	assert.Equal(t, 6.67, rows[0].PercentCrackedArea)
	assert.Equal(t, 833.33, rows[0].MeanCrackWidthMM)
	assert.Equal(t, 77.5, rows[1].SDI4)
	assert.Equal(t, "rutting", rows[1].Fallbacks)
	assert.Equal(t, 4.01, rows[2].MeanRuttingDepthCM)
}

func TestParseFormats(t *testing.T) {
	got, err := ParseFormats([]string{"XLSX", " geojson", "gpkg", "png"})
	require.NoError(t, err)
	assert.Equal(t, []Format{FormatXLSX, FormatGeoJSON, FormatGPKG, FormatPNG}, got)

	_, err = ParseFormats([]string{"pdf"})
	require.Error(t, err)
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), XLSXFile)
	require.NoError(t, WriteXLSX(sampleReport("EPSG:32749"), path))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 3)
	assert.Equal(t, SheetSummary, f.Sheets[0].Name)
	assert.Equal(t, SheetSegments, f.Sheets[1].Name)
	assert.Equal(t, SheetOverview, f.Sheets[2].Name)

	summary := f.Sheet[SheetSummary]
	require.Len(t, summary.Rows, 4)
	assert.Equal(t, "Segment", summary.Rows[0].Cells[0].String())
	assert.Equal(t, "Condition", summary.Rows[0].Cells[10].String())
	assert.Equal(t, "100+000 - 200+000", summary.Rows[2].Cells[1].String())
	n, err := summary.Rows[2].Cells[4].Int()
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	sdi4, err := summary.Rows[2].Cells[9].Float()
	require.NoError(t, err)
	assert.Equal(t, 77.5, sdi4)
	assert.Equal(t, "Fair", summary.Rows[2].Cells[10].String())

	segments := f.Sheet[SheetSegments]
	require.Len(t, segments.Rows, 4)
	end, err := segments.Rows[3].Cells[3].Float()
	require.NoError(t, err)
	assert.Equal(t, 250.0, end)

	overview := f.Sheet[SheetOverview]
	assert.Equal(t, "Location", overview.Rows[2].Cells[0].String())
	assert.Equal(t, "Jl. Raya Km 12", overview.Rows[2].Cells[1].String())
}

func TestFeatureCollection_Projected(t *testing.T) {
	fc, err := FeatureCollection(sampleReport(""))
	require.NoError(t, err)
	require.Len(t, fc.Features, 3)
	assert.Equal(t, "000+000 - 100+000", fc.Features[0].ID)
	assert.Equal(t, 12, fc.Features[1].Properties["pothole_count"])
	assert.Equal(t, rect(500000, 9226000, 500100, 9226003).FlatCoords(), fc.Features[0].Geometry.FlatCoords())
}

func TestWriteGeoJSON_ReprojectsToLonLat(t *testing.T) {
	path := filepath.Join(t.TempDir(), GeoJSONFile)
	require.NoError(t, WriteGeoJSON(sampleReport("EPSG:32749"), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string         `json:"type"`
				Coordinates [][][2]float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "FeatureCollection", doc.Type)
	require.Len(t, doc.Features, 3)
	assert.Equal(t, "Polygon", doc.Features[0].Geometry.Type)

	first := doc.Features[0].Geometry.Coordinates[0][0]
	assert.InDelta(t, 111.0, first[0], 0.01)
	assert.InDelta(t, -7.0, first[1], 0.05)
	assert.Equal(t, "Good", doc.Features[0].Properties["condition"])
}

func TestWriteGPKG(t *testing.T) {
	path := filepath.Join(t.TempDir(), GPKGFile)
	r := sampleReport("EPSG:32749")
	require.NoError(t, WriteGPKG(context.Background(), r, path))
	// Rewriting replaces the file.
	require.NoError(t, WriteGPKG(context.Background(), r, path))

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	var appID int64
	require.NoError(t, db.QueryRow("PRAGMA application_id").Scan(&appID))
	assert.Equal(t, int64(gpkgApplicationID), appID)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM segments").Scan(&count))
	assert.Equal(t, 3, count)

	var srsID int
	var geomType string
	require.NoError(t, db.QueryRow("SELECT srs_id, geometry_type_name FROM gpkg_geometry_columns WHERE table_name = 'segments'").Scan(&srsID, &geomType))
	assert.Equal(t, 32749, srsID)
	assert.Equal(t, "POLYGON", geomType)

	var minX float64
	require.NoError(t, db.QueryRow("SELECT min_x FROM gpkg_contents WHERE table_name = 'segments'").Scan(&minX))
	assert.Equal(t, 500000.0, minX)

	var blob []byte
	var cond string
	var sdi4 float64
	require.NoError(t, db.QueryRow("SELECT geom, condition, sdi4 FROM segments WHERE segment = 2").Scan(&blob, &cond, &sdi4))
	assert.Equal(t, "Fair", cond)
	assert.Equal(t, 77.5, sdi4)
	assert.Equal(t, []byte("GP"), blob[:2])
	assert.Equal(t, int32(32749), int32(binary.LittleEndian.Uint32(blob[4:8])))
}

func TestEncodeGeometry_Header(t *testing.T) {
	blob, err := EncodeGeometry(rect(1, 2, 3, 5), -1)
	require.NoError(t, err)
	assert.Equal(t, byte(0), blob[2])
	assert.Equal(t, byte(0x03), blob[3])

	var env [4]float64
	require.NoError(t, binary.Read(bytes.NewReader(blob[8:40]), binary.LittleEndian, &env))
	assert.Equal(t, [4]float64{1, 3, 2, 5}, env)
	// WKB follows, little-endian polygon.
	assert.Equal(t, byte(1), blob[40])
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(blob[41:45]))
}

func TestSRSFor(t *testing.T) {
	tests := []struct {
		crs string
		id  int32
		org string
	}{
		{"EPSG:32749", 32749, "EPSG"},
		{"epsg:4326", 4326, "EPSG"},
		{"", -1, "NONE"},
		{`PROJCS["WGS 84 / UTM zone 49S"]`, -1, "NONE"},
		{"EPSG:abc", -1, "NONE"},
	}
	for _, tt := range tests {
		id, org, _ := srsFor(tt.crs)
		assert.Equal(t, tt.id, id, tt.crs)
		assert.Equal(t, tt.org, org, tt.crs)
	}
}

func TestWriteCharts(t *testing.T) {
	dir := t.TempDir()
	r := sampleReport("EPSG:32749")
	require.NoError(t, WriteChart(r, filepath.Join(dir, ChartFile)))
	require.NoError(t, WriteMap(r, filepath.Join(dir, MapFile)))

	for _, name := range []string{ChartFile, MapFile} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")), name)
	}
}

func TestConditionMap_MismatchedInput(t *testing.T) {
	r := sampleReport("")
	r.Polygons = r.Polygons[:1]
	_, err := ConditionMap(r)
	require.Error(t, err)
	_, err = FeatureCollection(r)
	require.Error(t, err)
}

func TestWrite_AllFormats(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	paths, err := Write(context.Background(), sampleReport("EPSG:32749"), dir, []Format{FormatXLSX, FormatGeoJSON, FormatGPKG, FormatPNG})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, XLSXFile),
		filepath.Join(dir, GeoJSONFile),
		filepath.Join(dir, GPKGFile),
		filepath.Join(dir, ChartFile),
		filepath.Join(dir, MapFile),
	}, paths)
	for _, p := range paths {
		assert.FileExists(t, p)
	}
}
