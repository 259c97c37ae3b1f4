package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sdi-cli/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testSurvey(location string) model.Survey {
	return model.Survey{Location: location, STARange: "0+000 - 0+250", Surveyor: "Tim A", Date: "2024-05-01"}
}

var testParams = model.RunParams{RoadWidthM: 3, SegmentIntervalM: 100, ProjectedCRS: "EPSG:32749", BufferDistance: 0.3, UnitScale: 100}

func testCompletion() Completion {
	return Completion{
		Summary: model.Summary{
			SegmentCount:      2,
			PathLengthM:       200,
			MeasuredLengthM:   200,
			MeanSDI:           42.5,
			DominantCondition: model.ConditionGood,
			ConditionCounts:   map[model.Condition]int{model.ConditionGood: 1, model.ConditionFair: 1},
		},
		Metrics: []model.SegmentMetrics{
			{Index: 1, STA: "000+000 - 100+000", StartM: 0, EndM: 100, AreaM2: 300, PercentCrackedArea: 8.33, MeanCrackWidthMM: 2.5, SDI1: 5, SDI2: 5, SDI3: 5, SDI4: 10, Condition: model.ConditionGood},
			{Index: 2, STA: "100+000 - 200+000", StartM: 100, EndM: 200, AreaM2: 300, PotholeCount: 10, SDI3: 75, SDI4: 75, Condition: model.ConditionFair, Fallbacks: []string{model.MetricCracking, model.MetricRutting}},
		},
		Phases: []model.PhaseResult{
			{Name: "project", Duration: 3},
			{Name: "segment", Duration: 12, Detail: "2 segments"},
		},
	}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGetRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, testSurvey("Jl. Raya Km 12"), testParams)
		require.NoError(t, err)
		assert.NotEmpty(t, run.ID)
		assert.Equal(t, model.RunStatusRunning, run.Status)

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, got.ID)
		assert.Equal(t, model.RunStatusRunning, got.Status)
		assert.Equal(t, "Jl. Raya Km 12", got.Survey.Location)
		assert.Equal(t, testParams, got.Params)
		assert.Nil(t, got.Summary)
	})

	t.Run("GetRunNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetRun(context.Background(), "missing")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("UpdateRunStatus", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, testSurvey("a"), testParams)
		require.NoError(t, err)
		require.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.RunStatusFailed))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusFailed, got.Status)

		err = s.UpdateRunStatus(ctx, "missing", model.RunStatusComplete)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("CompleteRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, testSurvey("a"), testParams)
		require.NoError(t, err)
		c := testCompletion()
		require.NoError(t, s.CompleteRun(ctx, run.ID, c))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusComplete, got.Status)
		require.NotNil(t, got.Summary)
		assert.Equal(t, c.Summary, *got.Summary)

		segs, err := s.ListSegments(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, c.Metrics, segs)

		phases, err := s.ListPhases(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, c.Phases, phases)
	})

	t.Run("CompleteRunTwiceReplacesRows", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, testSurvey("a"), testParams)
		require.NoError(t, err)
		require.NoError(t, s.CompleteRun(ctx, run.ID, testCompletion()))

		c := testCompletion()
		c.Metrics = c.Metrics[:1]
		c.Metrics[0].SDI4 = 20
		c.Phases = c.Phases[:1]
		require.NoError(t, s.CompleteRun(ctx, run.ID, c))

		segs, err := s.ListSegments(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, segs, 1)
		assert.Equal(t, 20.0, segs[0].SDI4)

		phases, err := s.ListPhases(ctx, run.ID)
		require.NoError(t, err)
		assert.Len(t, phases, 1)
	})

	t.Run("CompleteRunNotFound", func(t *testing.T) {
		s := newStore(t)
		err := s.CompleteRun(context.Background(), "missing", testCompletion())
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("FailRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, testSurvey("a"), testParams)
		require.NoError(t, err)
		require.NoError(t, s.FailRun(ctx, run.ID, "road layer has no features"))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusFailed, got.Status)
		assert.Equal(t, "road layer has no features", got.Error)

		assert.True(t, errors.Is(s.FailRun(ctx, "missing", "x"), ErrNotFound))
	})

	t.Run("ListRuns", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		r1, err := s.CreateRun(ctx, testSurvey("north"), testParams)
		require.NoError(t, err)
		_, err = s.CreateRun(ctx, testSurvey("south"), testParams)
		require.NoError(t, err)
		_, err = s.CreateRun(ctx, testSurvey("north"), testParams)
		require.NoError(t, err)
		require.NoError(t, s.CompleteRun(ctx, r1.ID, testCompletion()))

		all, err := s.ListRuns(ctx, RunFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		north, err := s.ListRuns(ctx, RunFilter{Location: "north"})
		require.NoError(t, err)
		assert.Len(t, north, 2)

		complete, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
		require.NoError(t, err)
		require.Len(t, complete, 1)
		assert.Equal(t, r1.ID, complete[0].ID)

		page, err := s.ListRuns(ctx, RunFilter{Limit: 2, Offset: 2})
		require.NoError(t, err)
		assert.Len(t, page, 1)
	})

	t.Run("ListSegmentsUnknownRun", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ListSegments(context.Background(), "missing")
		assert.True(t, errors.Is(err, ErrNotFound))
		_, err = s.ListPhases(context.Background(), "missing")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("ListSegmentsBeforeCompletion", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		run, err := s.CreateRun(ctx, testSurvey("a"), testParams)
		require.NoError(t, err)

		segs, err := s.ListSegments(ctx, run.ID)
		require.NoError(t, err)
		assert.Empty(t, segs)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestSQLite(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestFallbacksRoundTrip(t *testing.T) {
	assert.Equal(t, "", joinFallbacks(nil))
	assert.Nil(t, splitFallbacks(""))
	assert.Equal(t, []string{"cracking", "rutting"}, splitFallbacks(joinFallbacks([]string{"cracking", "rutting"})))
}
