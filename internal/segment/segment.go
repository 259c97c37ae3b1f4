// Package segment divides a merged road centerline into fixed-length
// analysis segments and builds their buffered analysis polygons.
package segment

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geos"

	"github.com/sells-group/sdi-cli/internal/geometry"
	"github.com/sells-group/sdi-cli/internal/model"
)

// MaxSegments bounds the number of segments one path may be divided into.
const MaxSegments = 100_000

// Params controls segmentation.
type Params struct {
	RoadWidth float64
	Interval  float64
}

// Validate checks that both parameters are positive and finite.
func (p Params) Validate() error {
	if !positive(p.RoadWidth) {
		return &model.InvalidParameterError{Name: "road_width_m", Value: p.RoadWidth}
	}
	if !positive(p.Interval) {
		return &model.InvalidParameterError{Name: "segment_interval_m", Value: p.Interval}
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// Segment is one analysis unit along the road. Centerline is the straight
// chord between the interpolated start and end stations, not the path shape
// between them.
type Segment struct {
	Index      int
	Start      float64
	End        float64
	STA        string
	Centerline *geos.Geom
	Polygon    *geos.Geom
	Area       float64
}

// Length is End - Start.
func (s Segment) Length() float64 {
	return s.End - s.Start
}

// Build produces ordered segments at boundaries 0, interval, 2*interval, ...
// with the last end clamped to the path length. When the length is an exact
// multiple of the interval there is no zero-length trailing segment.
func Build(path *geometry.Path, p Params) ([]Segment, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	total := path.Length()
	if total <= 0 {
		return nil, eris.New("segment: path has zero length")
	}
	if total/p.Interval > MaxSegments {
		return nil, &model.InvalidParameterError{Name: "segment_interval_m", Value: p.Interval}
	}

	bounds := Boundaries(total, p.Interval)
	segments := make([]Segment, 0, len(bounds)-1)
	err := geometry.Safely(func() error {
		for i := 0; i+1 < len(bounds); i++ {
			start, end := bounds[i], bounds[i+1]
			index := i + 1
			chord := path.Chord(start, end)
			poly := geometry.BufferFlat(chord, p.RoadWidth/2)
			area := poly.Area()
			if area <= 0 {
				return eris.Errorf("segment: segment %d has empty analysis polygon", index)
			}
			segments = append(segments, Segment{
				Index:      index,
				Start:      start,
				End:        end,
				STA:        STALabel(index, p.Interval, total),
				Centerline: chord,
				Polygon:    poly,
				Area:       area,
			})
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "segment: build")
	}
	return segments, nil
}

// Boundaries returns the station values 0, interval, ..., length. Stations
// are computed as k*interval rather than by repeated addition so that they do
// not accumulate rounding drift. Callers bound length/interval; Build rejects
// ratios above MaxSegments.
func Boundaries(length, interval float64) []float64 {
	n := int(math.Ceil(length / interval))
	if n < 1 {
		n = 1
	}
	// Guard against ceil rounding up an exact multiple (e.g. 0.3/0.1).
	if n > 1 && float64(n-1)*interval >= length {
		n--
	}
	out := make([]float64, 0, n+1)
	for k := range n {
		out = append(out, float64(k)*interval)
	}
	return append(out, length)
}

// STALabel formats the station range of segment index (1-based) as
// "SSS+000 - EEE+000", where the end station is capped at the floor of the
// total path length.
func STALabel(index int, interval, total float64) string {
	start := float64(index-1) * interval
	end := math.Min(float64(index)*interval, math.Floor(total))
	return fmt.Sprintf("%03.0f+000 - %03.0f+000", start, end)
}
