package pipeline

import (
	"math"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/sdi-cli/internal/model"
	"github.com/sells-group/sdi-cli/internal/raster"
)

// Summarize reduces a result table. MeasuredLengthM is segment count times
// interval, the figure surveys report; PathLengthM is the merged length.
// The dominant condition is the most frequent one, ties going to the
// better condition.
func Summarize(metrics []model.SegmentMetrics, ruts []raster.RuttingFeature, interval, pathLength float64) model.Summary {
	s := model.Summary{
		SegmentCount:    len(metrics),
		PathLengthM:     pathLength,
		MeasuredLengthM: float64(len(metrics)) * interval,
		ConditionCounts: make(map[model.Condition]int, len(model.Conditions)),
	}
	if len(metrics) == 0 {
		return s
	}

	values := make([]float64, len(metrics))
	for i, m := range metrics {
		values[i] = m.SDI4
		s.ConditionCounts[m.Condition]++
		if m.Degraded() {
			s.DegradedSegments++
		}
	}
	s.MeanSDI = Round2(stat.Mean(values, nil))

	best := -1
	for _, c := range model.Conditions {
		if n := s.ConditionCounts[c]; n > best {
			best = n
			s.DominantCondition = c
		}
	}

	for _, r := range ruts {
		if r.Fallback {
			s.FallbackDepthCount++
		}
	}
	return s
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatInt(n int) string {
	return strconv.Itoa(n)
}
