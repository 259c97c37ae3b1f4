package report

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	_ "modernc.org/sqlite"
)

const (
	gpkgApplicationID = 0x47504B47 // "GPKG"
	gpkgUserVersion   = 10300
)

const gpkgSchema = `
CREATE TABLE gpkg_spatial_ref_sys (
	srs_name                 TEXT NOT NULL,
	srs_id                   INTEGER NOT NULL PRIMARY KEY,
	organization             TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition               TEXT NOT NULL,
	description              TEXT
);

CREATE TABLE gpkg_contents (
	table_name  TEXT NOT NULL PRIMARY KEY,
	data_type   TEXT NOT NULL,
	identifier  TEXT UNIQUE,
	description TEXT DEFAULT '',
	last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	min_x       DOUBLE,
	min_y       DOUBLE,
	max_x       DOUBLE,
	max_y       DOUBLE,
	srs_id      INTEGER REFERENCES gpkg_spatial_ref_sys(srs_id)
);

CREATE TABLE gpkg_geometry_columns (
	table_name         TEXT NOT NULL REFERENCES gpkg_contents(table_name),
	column_name        TEXT NOT NULL,
	geometry_type_name TEXT NOT NULL,
	srs_id             INTEGER NOT NULL REFERENCES gpkg_spatial_ref_sys(srs_id),
	z                  TINYINT NOT NULL,
	m                  TINYINT NOT NULL,
	PRIMARY KEY (table_name, column_name)
);

INSERT INTO gpkg_spatial_ref_sys VALUES
	('Undefined cartesian SRS', -1, 'NONE', -1, 'undefined', 'undefined cartesian coordinate reference system'),
	('Undefined geographic SRS', 0, 'NONE', 0, 'undefined', 'undefined geographic coordinate reference system'),
	('WGS 84 geodetic', 4326, 'EPSG', 4326, 'GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]]', 'longitude/latitude coordinates in decimal degrees on the WGS 84 spheroid');

CREATE TABLE segments (
	fid                   INTEGER PRIMARY KEY AUTOINCREMENT,
	geom                  POLYGON,
	segment               INTEGER NOT NULL,
	sta                   TEXT NOT NULL,
	percent_cracked_area  DOUBLE,
	mean_crack_width_mm   DOUBLE,
	pothole_count         INTEGER,
	mean_rutting_depth_cm DOUBLE,
	sdi1                  DOUBLE,
	sdi2                  DOUBLE,
	sdi3                  DOUBLE,
	sdi4                  DOUBLE,
	condition             TEXT,
	fallbacks             TEXT
);
`

// WriteGPKG writes the segment polygons and metrics as a GeoPackage feature
// table named "segments". An existing file at path is replaced.
func WriteGPKG(ctx context.Context, r *Report, path string) error {
	if len(r.Polygons) != len(r.Metrics) {
		return eris.Errorf("gpkg: %d polygons for %d metric rows", len(r.Polygons), len(r.Metrics))
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "gpkg: remove %s", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return eris.Wrap(err, "gpkg: open")
	}
	defer db.Close() //nolint:errcheck

	srsID, org, code := srsFor(r.Params.ProjectedCRS)

	for _, pragma := range []string{
		"PRAGMA application_id = " + strconv.Itoa(gpkgApplicationID),
		"PRAGMA user_version = " + strconv.Itoa(gpkgUserVersion),
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return eris.Wrapf(err, "gpkg: exec %s", pragma)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "gpkg: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, gpkgSchema); err != nil {
		return eris.Wrap(err, "gpkg: create schema")
	}

	if srsID > 0 && srsID != 4326 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO gpkg_spatial_ref_sys (srs_name, srs_id, organization, organization_coordsys_id, definition) VALUES (?, ?, ?, ?, ?)`,
			r.Params.ProjectedCRS, srsID, org, code, "undefined",
		); err != nil {
			return eris.Wrap(err, "gpkg: insert srs")
		}
	}

	bounds := geom.NewBounds(geom.XY)
	for _, p := range r.Polygons {
		bounds.Extend(p)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, description, min_x, min_y, max_x, max_y, srs_id) VALUES (?, 'features', ?, ?, ?, ?, ?, ?, ?)`,
		defaultTable, "SDI segments", "Surface Distress Index per segment "+r.RunID,
		finiteOrNil(bounds.Min(0)), finiteOrNil(bounds.Min(1)), finiteOrNil(bounds.Max(0)), finiteOrNil(bounds.Max(1)), srsID,
	); err != nil {
		return eris.Wrap(err, "gpkg: insert contents")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_geometry_columns VALUES (?, 'geom', 'POLYGON', ?, 0, 0)`,
		defaultTable, srsID,
	); err != nil {
		return eris.Wrap(err, "gpkg: insert geometry column")
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO segments (geom, segment, sta, percent_cracked_area, mean_crack_width_mm, pothole_count, mean_rutting_depth_cm, sdi1, sdi2, sdi3, sdi4, condition, fallbacks) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "gpkg: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i, row := range Rows(r.Metrics) {
		blob, err := EncodeGeometry(r.Polygons[i], srsID)
		if err != nil {
			return eris.Wrapf(err, "gpkg: encode segment %d", row.Segment)
		}
		if _, err := stmt.ExecContext(ctx, blob, row.Segment, row.STA,
			row.PercentCrackedArea, row.MeanCrackWidthMM, row.PotholeCount, row.MeanRuttingDepthCM,
			row.SDI1, row.SDI2, row.SDI3, row.SDI4, row.Condition, row.Fallbacks,
		); err != nil {
			return eris.Wrapf(err, "gpkg: insert segment %d", row.Segment)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "gpkg: commit")
	}
	return nil
}

// EncodeGeometry builds a GeoPackage geometry blob: the "GP" header with an
// XY envelope followed by little-endian WKB.
func EncodeGeometry(g geom.T, srsID int32) ([]byte, error) {
	body, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: marshal wkb")
	}

	var buf bytes.Buffer
	buf.WriteString("GP")
	buf.WriteByte(0) // version 1
	// Envelope [minx, maxx, miny, maxy], little-endian header.
	buf.WriteByte(0x01<<1 | 0x01)
	_ = binary.Write(&buf, binary.LittleEndian, srsID)
	b := g.Bounds()
	for _, v := range []float64{b.Min(0), b.Max(0), b.Min(1), b.Max(1)} {
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	buf.Write(body)
	return buf.Bytes(), nil
}

// srsFor maps "AUTH:CODE" identifiers to a GeoPackage srs_id. Anything else
// is the undefined cartesian system.
func srsFor(crs string) (id int32, org string, code int32) {
	name, num, ok := strings.Cut(strings.TrimSpace(crs), ":")
	if !ok {
		return -1, "NONE", -1
	}
	n, err := strconv.ParseInt(num, 10, 32)
	if err != nil || n <= 0 {
		return -1, "NONE", -1
	}
	return int32(n), strings.ToUpper(name), int32(n)
}

func finiteOrNil(v float64) any {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return v
}
