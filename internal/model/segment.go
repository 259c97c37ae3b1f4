package model

// Condition is the road condition class derived from the final SDI value.
type Condition string

const (
	ConditionGood       Condition = "Good"
	ConditionFair       Condition = "Fair"
	ConditionPoorLight  Condition = "Poor (light)"
	ConditionPoorSevere Condition = "Poor (severe)"
)

// Conditions lists every condition from best to worst.
var Conditions = []Condition{
	ConditionGood,
	ConditionFair,
	ConditionPoorLight,
	ConditionPoorSevere,
}

// Metric names used when a segment metric falls back to zero.
const (
	MetricCracking = "cracking"
	MetricPothole  = "pothole"
	MetricRutting  = "rutting"
)

// SegmentMetrics is the result record for one road segment.
type SegmentMetrics struct {
	Index              int       `json:"index"`
	STA                string    `json:"sta"`
	StartM             float64   `json:"start_m"`
	EndM               float64   `json:"end_m"`
	AreaM2             float64   `json:"area_m2"`
	PercentCrackedArea float64   `json:"percent_cracked_area"`
	MeanCrackWidthMM   float64   `json:"mean_crack_width_mm"`
	PotholeCount       int       `json:"pothole_count"`
	MeanRuttingDepthCM float64   `json:"mean_rutting_depth_cm"`
	SDI1               float64   `json:"sdi1"`
	SDI2               float64   `json:"sdi2"`
	SDI3               float64   `json:"sdi3"`
	SDI4               float64   `json:"sdi4"`
	Condition          Condition `json:"condition"`
	// Fallbacks names the metrics that were zeroed because their
	// computation failed or relied on a fallback depth.
	Fallbacks []string `json:"fallbacks,omitempty"`
}

// Degraded reports whether any metric of the segment fell back to zero.
func (m SegmentMetrics) Degraded() bool {
	return len(m.Fallbacks) > 0
}
