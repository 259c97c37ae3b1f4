package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/rotisserie/eris"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sdi-cli/internal/config"
	"github.com/sells-group/sdi-cli/internal/model"
	"github.com/sells-group/sdi-cli/internal/pipeline"
	"github.com/sells-group/sdi-cli/internal/store"
)

// newOverrideCmd mirrors the analyze override flags on a fresh command so
// tests do not mutate analyzeCmd.
func newOverrideCmd() *cobra.Command {
	c := &cobra.Command{Use: "analyze-test"}
	f := c.Flags()
	f.Float64("width", 0, "")
	f.Float64("interval", 0, "")
	f.String("crs", "", "")
	f.Int("concurrency", 0, "")
	f.String("out", "", "")
	f.StringSlice("format", nil, "")
	return c
}

func baseConfig() *config.Config {
	return &config.Config{
		Road:     config.RoadConfig{WidthM: 3, IntervalM: 100, ProjectedCRS: "EPSG:32749"},
		Rutting:  config.RuttingConfig{BufferDistance: 0.3, UnitScale: 100, MaxDepthCM: 15},
		Pipeline: config.PipelineConfig{Concurrency: 4},
		Export:   config.ExportConfig{Dir: "out", Formats: []string{"xlsx", "geojson"}},
	}
}

func TestApplyAnalyzeFlags_OnlyChangedFlags(t *testing.T) {
	cmd := newOverrideCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--width", "3.5", "--format", "gpkg,png"}))

	c := baseConfig()
	require.NoError(t, applyAnalyzeFlags(cmd, c))

	assert.Equal(t, 3.5, c.Road.WidthM)
	assert.Equal(t, []string{"gpkg", "png"}, c.Export.Formats)
	assert.Equal(t, 100.0, c.Road.IntervalM)
	assert.Equal(t, "EPSG:32749", c.Road.ProjectedCRS)
	assert.Equal(t, 4, c.Pipeline.Concurrency)
	assert.Equal(t, "out", c.Export.Dir)
}

func TestApplyAnalyzeFlags_AllOverrides(t *testing.T) {
	cmd := newOverrideCmd()
	require.NoError(t, cmd.ParseFlags([]string{
		"--interval", "50", "--crs", "EPSG:32750", "--concurrency", "2", "--out", "/tmp/sdi",
	}))

	c := baseConfig()
	require.NoError(t, applyAnalyzeFlags(cmd, c))

	assert.Equal(t, 50.0, c.Road.IntervalM)
	assert.Equal(t, "EPSG:32750", c.Road.ProjectedCRS)
	assert.Equal(t, 2, c.Pipeline.Concurrency)
	assert.Equal(t, "/tmp/sdi", c.Export.Dir)
}

func TestPipelineOptionsAndRunParams(t *testing.T) {
	c := baseConfig()

	opts := pipelineOptions(c)
	assert.Equal(t, pipeline.Options{
		RoadWidth:      3,
		Interval:       100,
		ProjectedCRS:   "EPSG:32749",
		BufferDistance: 0.3,
		UnitScale:      100,
		MaxDepthCM:     15,
		Concurrency:    4,
	}, opts)

	assert.Equal(t, model.RunParams{
		RoadWidthM:       3,
		SegmentIntervalM: 100,
		ProjectedCRS:     "EPSG:32749",
		BufferDistance:   0.3,
		UnitScale:        100,
	}, runParams(c))
}

func TestWriteRunSummary(t *testing.T) {
	res := &pipeline.Result{
		Metrics: []model.SegmentMetrics{
			{Index: 1, STA: "0+000 - 0+100", SDI4: 20, Condition: model.ConditionGood},
			{Index: 2, STA: "0+100 - 0+150", PotholeCount: 10, SDI3: 75, SDI4: 75, Condition: model.ConditionFair, Fallbacks: []string{model.MetricRutting}},
		},
		Summary: model.Summary{
			SegmentCount:      2,
			MeasuredLengthM:   150,
			MeanSDI:           47.5,
			DominantCondition: model.ConditionGood,
			DegradedSegments:  1,
		},
	}

	var buf bytes.Buffer
	writeRunSummary(&buf, "run-1", res, []string{"out/run-1.xlsx"})

	output := buf.String()
	assert.Contains(t, output, "0+100 - 0+150")
	assert.Contains(t, output, "Fair *")
	assert.Contains(t, output, "Run run-1: 2 segments, 150 m measured, mean SDI 47.50")
	assert.Contains(t, output, "1 segment(s) marked * used a fallback value")
	assert.Contains(t, output, "wrote out/run-1.xlsx")
}

func TestWriteRunSummary_NoDegraded(t *testing.T) {
	res := &pipeline.Result{
		Metrics: []model.SegmentMetrics{{Index: 1, STA: "0+000 - 0+100", Condition: model.ConditionGood}},
		Summary: model.Summary{SegmentCount: 1, MeasuredLengthM: 100, DominantCondition: model.ConditionGood},
	}

	var buf bytes.Buffer
	writeRunSummary(&buf, "run-2", res, nil)

	assert.NotContains(t, buf.String(), "*")
	assert.NotContains(t, buf.String(), "wrote")
}

// outcomeStore records terminal run writes. Other Store methods panic.
type outcomeStore struct {
	store.Store
	completeErr error

	completed []store.Completion
	failed    []string
	ctxErrs   []error
}

func (s *outcomeStore) CompleteRun(ctx context.Context, _ string, c store.Completion) error {
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	s.completed = append(s.completed, c)
	return s.completeErr
}

func (s *outcomeStore) FailRun(ctx context.Context, _ string, reason string) error {
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	s.failed = append(s.failed, reason)
	return nil
}

func outcomeResult() *pipeline.Result {
	return &pipeline.Result{
		Summary: model.Summary{SegmentCount: 1, MeanSDI: 20},
		Metrics: []model.SegmentMetrics{{Index: 0, SDI4: 20}},
	}
}

func TestRecordOutcome_Complete(t *testing.T) {
	st := &outcomeStore{}
	err := recordOutcome(context.Background(), st, "run-1", outcomeResult(), nil)
	require.NoError(t, err)
	require.Len(t, st.completed, 1)
	assert.Equal(t, 1, st.completed[0].Summary.SegmentCount)
	assert.Empty(t, st.failed)
}

func TestRecordOutcome_CompletionErrorMarksFailed(t *testing.T) {
	st := &outcomeStore{completeErr: eris.New("store: complete run: connection reset")}
	err := recordOutcome(context.Background(), st, "run-1", outcomeResult(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Len(t, st.completed, 1)
	require.Len(t, st.failed, 1)
	assert.Contains(t, st.failed[0], "connection reset")
}

func TestRecordOutcome_RunErrorMarksFailed(t *testing.T) {
	st := &outcomeStore{}
	runErr := eris.New("pipeline: road layer is empty")
	err := recordOutcome(context.Background(), st, "run-1", nil, runErr)
	assert.Equal(t, runErr, err)
	assert.Empty(t, st.completed)
	assert.Equal(t, []string{runErr.Error()}, st.failed)
}

func TestRecordOutcome_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st := &outcomeStore{completeErr: eris.New("store: complete run: timeout")}
	err := recordOutcome(ctx, st, "run-1", outcomeResult(), nil)
	require.Error(t, err)
	require.Len(t, st.ctxErrs, 2)
	for _, e := range st.ctxErrs {
		assert.NoError(t, e)
	}
}
