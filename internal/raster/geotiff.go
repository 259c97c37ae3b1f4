package raster

import (
	"context"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geos"
	"go.uber.org/zap"
)

var registerDrivers sync.Once

// GeoTIFF is a Source backed by a GDAL dataset. GDAL dataset handles are not
// safe for concurrent reads, so reads are serialized.
type GeoTIFF struct {
	mu        sync.Mutex
	ds        *godal.Dataset
	band      godal.Band
	crs       string
	transform GeoTransform
	width     int
	height    int
	noData    float64
	hasNoData bool
}

// OpenGeoTIFF opens the first band of a raster file read-only.
func OpenGeoTIFF(path string) (*GeoTIFF, error) {
	registerDrivers.Do(godal.RegisterAll)

	ds, err := godal.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: open %s", path)
	}

	bands := ds.Bands()
	if len(bands) == 0 {
		_ = ds.Close()
		return nil, eris.Errorf("raster: %s has no bands", path)
	}

	gt, err := ds.GeoTransform()
	if err != nil {
		_ = ds.Close()
		return nil, eris.Wrapf(err, "raster: read geotransform of %s", path)
	}
	if !GeoTransform(gt).IsNorthUp() {
		_ = ds.Close()
		return nil, eris.Errorf("raster: %s has a rotated geotransform", path)
	}

	st := ds.Structure()
	g := &GeoTIFF{
		ds:        ds,
		band:      bands[0],
		crs:       datasetCRS(ds),
		transform: GeoTransform(gt),
		width:     st.SizeX,
		height:    st.SizeY,
	}
	g.noData, g.hasNoData = bands[0].NoData()

	zap.L().Debug("raster: opened",
		zap.String("path", path),
		zap.Int("width", g.width),
		zap.Int("height", g.height),
		zap.String("crs", abbreviate(g.crs)),
		zap.Bool("nodata", g.hasNoData),
	)
	return g, nil
}

// datasetCRS prefers an "AUTH:CODE" identifier and falls back to WKT.
func datasetCRS(ds *godal.Dataset) string {
	wkt := strings.TrimSpace(ds.Projection())
	if wkt == "" {
		return ""
	}
	sr := ds.SpatialRef()
	defer sr.Close()
	if name, code := sr.AuthorityName(""), sr.AuthorityCode(""); name != "" && code != "" {
		return name + ":" + code
	}
	return wkt
}

// CRS implements Source.
func (g *GeoTIFF) CRS() string { return g.crs }

// Read implements Source.
func (g *GeoTIFF) Read(ctx context.Context, bounds *geos.Box2D) (*Window, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	col0, row0, col1, row1, err := cellRange(g.transform, g.width, g.height, bounds)
	if err != nil {
		return nil, err
	}

	w, h := col1-col0, row1-row0
	buf := make([]float64, w*h)

	g.mu.Lock()
	err = g.band.Read(col0, row0, buf, w, h)
	g.mu.Unlock()
	if err != nil {
		return nil, eris.Wrapf(err, "raster: read window %d,%d %dx%d", col0, row0, w, h)
	}

	return &Window{
		Transform: g.transform.Shift(col0, row0),
		Width:     w,
		Height:    h,
		Values:    buf,
		NoData:    g.noData,
		HasNoData: g.hasNoData,
	}, nil
}

// Close releases the dataset.
func (g *GeoTIFF) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ds == nil {
		return nil
	}
	err := g.ds.Close()
	g.ds = nil
	if err != nil {
		return eris.Wrap(err, "raster: close dataset")
	}
	return nil
}

func abbreviate(crs string) string {
	if len(crs) > 48 {
		return crs[:45] + "..."
	}
	return crs
}
