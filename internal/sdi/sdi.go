// Package sdi implements the four-stage cascading Surface Distress Index.
package sdi

import (
	"math"

	"github.com/sells-group/sdi-cli/internal/model"
)

// Inputs are the aggregated distress metrics of one segment.
type Inputs struct {
	PercentCrackedArea float64 `json:"percent_cracked_area"`
	MeanCrackWidthMM   float64 `json:"mean_crack_width_mm"`
	PotholeCount       int     `json:"pothole_count"`
	MeanRuttingDepthCM float64 `json:"mean_rutting_depth_cm"`
}

// Score is the cascade result. Each stage is the previous one plus (or, for
// SDI2, times) a distress penalty, so SDI1 <= SDI2 <= SDI3 <= SDI4.
type Score struct {
	SDI1      float64         `json:"sdi1"`
	SDI2      float64         `json:"sdi2"`
	SDI3      float64         `json:"sdi3"`
	SDI4      float64         `json:"sdi4"`
	Condition model.Condition `json:"condition"`
}

// Compute scores a segment. It is total: NaN or negative inputs are treated
// as zero distress.
func Compute(in Inputs) Score {
	sdi1 := crackingExtent(sanitize(in.PercentCrackedArea))
	sdi2 := crackWidth(sdi1, sanitize(in.MeanCrackWidthMM))
	sdi3 := sdi2 + potholes(max(in.PotholeCount, 0))
	sdi4 := sdi3 + rutting(sanitize(in.MeanRuttingDepthCM))
	return Score{
		SDI1:      sdi1,
		SDI2:      sdi2,
		SDI3:      sdi3,
		SDI4:      sdi4,
		Condition: Classify(sdi4),
	}
}

// Classify maps a final SDI value to a condition class.
func Classify(sdi4 float64) model.Condition {
	switch {
	case sdi4 < 50:
		return model.ConditionGood
	case sdi4 <= 100:
		return model.ConditionFair
	case sdi4 <= 150:
		return model.ConditionPoorLight
	default:
		return model.ConditionPoorSevere
	}
}

// crackingExtent: 0% → 0, (0,10) → 5, [10,30] → 20, >30 → 40.
func crackingExtent(pct float64) float64 {
	switch {
	case pct == 0:
		return 0
	case pct < 10:
		return 5
	case pct <= 30:
		return 20
	default:
		return 40
	}
}

// crackWidth doubles the score for cracks wider than 3 mm.
func crackWidth(sdi1, widthMM float64) float64 {
	if widthMM > 3 {
		return sdi1 * 2
	}
	return sdi1
}

// potholes: 0 → 0, (0,10) → 15, [10,50] → 75, >50 → 225.
func potholes(n int) float64 {
	switch {
	case n == 0:
		return 0
	case n < 10:
		return 15
	case n <= 50:
		return 75
	default:
		return 225
	}
}

// rutting: 0 → 0, (0,1) → 2.5, [1,3] → 10, >3 → 20.
func rutting(depthCM float64) float64 {
	switch {
	case depthCM == 0:
		return 0
	case depthCM < 1:
		return 5 * 0.5
	case depthCM <= 3:
		return 5 * 2
	default:
		return 5 * 4
	}
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}
