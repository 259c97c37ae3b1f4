package report

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/sdi-cli/internal/layer"
)

// GeoJSONCRS is the CRS GeoJSON coordinates are written in.
const GeoJSONCRS = "EPSG:4326"

// Properties returns the attribute map of a row, keyed as in the GeoJSON
// and GeoPackage exports.
func (row Row) Properties() map[string]any {
	return map[string]any{
		"segment":               row.Segment,
		"sta":                   row.STA,
		"percent_cracked_area":  row.PercentCrackedArea,
		"mean_crack_width_mm":   row.MeanCrackWidthMM,
		"pothole_count":         row.PotholeCount,
		"mean_rutting_depth_cm": row.MeanRuttingDepthCM,
		"sdi1":                  row.SDI1,
		"sdi2":                  row.SDI2,
		"sdi3":                  row.SDI3,
		"sdi4":                  row.SDI4,
		"condition":             row.Condition,
		"fallbacks":             row.Fallbacks,
	}
}

// FeatureCollection builds the segment polygons with their metrics, in
// longitude/latitude when the run's CRS is known.
func FeatureCollection(r *Report) (*geojson.FeatureCollection, error) {
	if len(r.Polygons) != len(r.Metrics) {
		return nil, eris.Errorf("geojson: %d polygons for %d metric rows", len(r.Polygons), len(r.Metrics))
	}

	polys := r.Polygons
	if src := r.Params.ProjectedCRS; src != "" && !layer.SameCRS(src, GeoJSONCRS) {
		t, err := layer.NewTransformer(src, GeoJSONCRS)
		if err != nil {
			return nil, eris.Wrap(err, "geojson: build transform")
		}
		defer t.Close()
		polys = make([]geom.T, len(r.Polygons))
		for i, p := range r.Polygons {
			if polys[i], err = t.Transform(p); err != nil {
				return nil, eris.Wrapf(err, "geojson: transform segment %d", r.Metrics[i].Index)
			}
		}
	}

	fc := &geojson.FeatureCollection{}
	for i, row := range Rows(r.Metrics) {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         row.STA,
			Geometry:   polys[i],
			Properties: row.Properties(),
		})
	}
	return fc, nil
}

// WriteGeoJSON writes the segment layer as a GeoJSON FeatureCollection.
func WriteGeoJSON(r *Report, path string) error {
	fc, err := FeatureCollection(r)
	if err != nil {
		return err
	}
	data, err := json.Marshal(fc)
	if err != nil {
		return eris.Wrap(err, "geojson: marshal")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "geojson: write %s", path)
	}
	return nil
}
