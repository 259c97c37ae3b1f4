package model

import "time"

// RunStatus represents the current state of an analysis run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunParams are the scalar parameters an analysis run was executed with.
type RunParams struct {
	RoadWidthM       float64 `json:"road_width_m"`
	SegmentIntervalM float64 `json:"segment_interval_m"`
	ProjectedCRS     string  `json:"projected_crs"`
	BufferDistance   float64 `json:"buffer_distance"`
	UnitScale        float64 `json:"unit_scale"`
}

// Survey holds descriptive report metadata for a run.
type Survey struct {
	Location string `json:"location,omitempty" yaml:"location" mapstructure:"location"`
	STARange string `json:"sta_range,omitempty" yaml:"sta_range" mapstructure:"sta_range"`
	Surveyor string `json:"surveyor,omitempty" yaml:"surveyor" mapstructure:"surveyor"`
	Date     string `json:"date,omitempty" yaml:"date" mapstructure:"date"`
	Agency   string `json:"agency,omitempty" yaml:"agency" mapstructure:"agency"`
}

// Summary aggregates a completed result table.
type Summary struct {
	SegmentCount       int               `json:"segment_count"`
	PathLengthM        float64           `json:"path_length_m"`
	MeasuredLengthM    float64           `json:"measured_length_m"`
	MeanSDI            float64           `json:"mean_sdi"`
	DominantCondition  Condition         `json:"dominant_condition"`
	ConditionCounts    map[Condition]int `json:"condition_counts"`
	DegradedSegments   int               `json:"degraded_segments"`
	FallbackDepthCount int               `json:"fallback_depth_count"`
}

// PhaseResult records the outcome of one pipeline phase.
type PhaseResult struct {
	Name     string `json:"name"`
	Duration int64  `json:"duration_ms"`
	Detail   string `json:"detail,omitempty"`
}

// Run represents a single persisted analysis run.
type Run struct {
	ID        string    `json:"id"`
	Survey    Survey    `json:"survey"`
	Params    RunParams `json:"params"`
	Status    RunStatus `json:"status"`
	Summary   *Summary  `json:"summary,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
