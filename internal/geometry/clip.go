package geometry

import (
	"github.com/twpayne/go-geos"
)

// BufferFlat buffers line by halfWidth on both sides with flat end caps,
// producing a corridor that ends exactly at the line's endpoints.
func BufferFlat(line *geos.Geom, halfWidth float64) *geos.Geom {
	return line.BufferWithStyle(halfWidth, bufferQuadSegs, geos.BufCapStyleFlat, geos.BufJoinStyleRound, 5)
}

// OuterRing returns polygon buffered outward by distance minus the polygon
// itself.
func OuterRing(polygon *geos.Geom, distance float64) *geos.Geom {
	return polygon.Buffer(distance, bufferQuadSegs).Difference(polygon)
}

// ClippedPiece is the polygonal part of a feature clipped to an analysis
// polygon. Length is the perimeter of the clipped geometry.
type ClippedPiece struct {
	Geom   *geos.Geom
	Area   float64
	Length float64
}

// Intersect clips g to polygon. Only the polygonal part of the
// intersection is kept: a feature that merely touches the polygon (shared
// edge or vertex, zero area) yields no piece. The returned slice has at most
// one element per call.
func Intersect(g, polygon *geos.Geom) []ClippedPiece {
	if g == nil || polygon == nil || g.IsEmpty() || polygon.IsEmpty() {
		return nil
	}
	if !boundsOverlap(g.Bounds(), polygon.Bounds()) {
		return nil
	}
	if !g.Intersects(polygon) {
		return nil
	}

	clipped := g.Intersection(polygon)
	if clipped.IsEmpty() {
		return nil
	}

	area, length := polygonalMeasures(clipped)
	if area <= 0 {
		return nil
	}
	return []ClippedPiece{{Geom: clipped, Area: area, Length: length}}
}

// Contains reports whether g lies inside polygon. Points on the polygon
// boundary count as inside; other geometries must lie within the closed
// polygon. Callers resolve features covered by several polygons.
func Contains(polygon, g *geos.Geom) bool {
	if g == nil || polygon == nil || g.IsEmpty() {
		return false
	}
	if !boundsOverlap(g.Bounds(), polygon.Bounds()) {
		return false
	}
	switch g.TypeID() {
	case geos.TypeIDPoint:
		return polygon.Intersects(g)
	default:
		return g.Within(polygon)
	}
}

// polygonalMeasures sums area and perimeter over the polygonal components
// of g, ignoring any points or lines produced by touching boundaries.
func polygonalMeasures(g *geos.Geom) (area, length float64) {
	switch g.TypeID() {
	case geos.TypeIDPolygon, geos.TypeIDMultiPolygon:
		return g.Area(), g.Length()
	case geos.TypeIDGeometryCollection:
		for i := range g.NumGeometries() {
			a, l := polygonalMeasures(g.Geometry(i))
			area += a
			length += l
		}
		return area, length
	default:
		return 0, 0
	}
}

func boundsOverlap(a, b *geos.Box2D) bool {
	if a == nil || b == nil {
		return false
	}
	return a.MinX <= b.MaxX && b.MinX <= a.MaxX && a.MinY <= b.MaxY && b.MinY <= a.MaxY
}
