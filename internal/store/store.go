// Package store persists analysis runs, their segment metrics and phase
// timings in SQLite or PostgreSQL.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sdi-cli/internal/model"
)

// ErrNotFound is returned (wrapped) when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status   model.RunStatus `json:"status,omitempty"`
	Location string          `json:"location,omitempty"`
	Limit    int             `json:"limit,omitempty"`
	Offset   int             `json:"offset,omitempty"`
}

// Completion is everything recorded when a run finishes successfully.
type Completion struct {
	Summary model.Summary
	Metrics []model.SegmentMetrics
	Phases  []model.PhaseResult
}

// Store defines the persistence interface for analysis runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, survey model.Survey, params model.RunParams) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, c Completion) error
	FailRun(ctx context.Context, runID string, reason string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Results
	ListSegments(ctx context.Context, runID string) ([]model.SegmentMetrics, error)
	ListPhases(ctx context.Context, runID string) ([]model.PhaseResult, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

// segmentColumns is the column order shared by both backends.
var segmentColumns = []string{
	"run_id", "segment", "sta", "start_m", "end_m", "area_m2",
	"percent_cracked_area", "mean_crack_width_mm", "pothole_count", "mean_rutting_depth_cm",
	"sdi1", "sdi2", "sdi3", "sdi4", "condition", "fallbacks",
}

var phaseColumns = []string{"run_id", "seq", "name", "duration_ms", "detail"}

func notFound(entity, id string) error {
	return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
}

func joinFallbacks(f []string) string {
	return strings.Join(f, ",")
}

func splitFallbacks(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
