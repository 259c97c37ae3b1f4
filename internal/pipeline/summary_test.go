package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/sdi-cli/internal/layer"
	"github.com/sells-group/sdi-cli/internal/model"
	"github.com/sells-group/sdi-cli/internal/raster"
)

func rows(conds ...model.Condition) []model.SegmentMetrics {
	out := make([]model.SegmentMetrics, len(conds))
	for i, c := range conds {
		out[i] = model.SegmentMetrics{Index: i + 1, Condition: c}
	}
	return out
}

func TestSummarize_DominantCondition(t *testing.T) {
	tests := []struct {
		name  string
		conds []model.Condition
		want  model.Condition
	}{
		{"majority", []model.Condition{model.ConditionFair, model.ConditionFair, model.ConditionGood}, model.ConditionFair},
		{"tie goes to better condition", []model.Condition{model.ConditionPoorSevere, model.ConditionGood}, model.ConditionGood},
		{"severe majority", []model.Condition{model.ConditionPoorSevere, model.ConditionPoorSevere, model.ConditionPoorLight}, model.ConditionPoorSevere},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summarize(rows(tt.conds...), nil, 100, 0).DominantCondition)
		})
	}
}

func TestSummarize_Totals(t *testing.T) {
	metrics := []model.SegmentMetrics{
		{Index: 1, SDI4: 10, Condition: model.ConditionGood},
		{Index: 2, SDI4: 20, Condition: model.ConditionGood, Fallbacks: []string{model.MetricPothole}},
		{Index: 3, SDI4: 25, Condition: model.ConditionGood},
	}
	ruts := []raster.RuttingFeature{
		{Feature: layer.Feature{ID: 0}, Fallback: true},
		{Feature: layer.Feature{ID: 1}},
	}
	s := Summarize(metrics, ruts, 100, 250)
	assert.Equal(t, 3, s.SegmentCount)
	assert.Equal(t, 300.0, s.MeasuredLengthM)
	assert.Equal(t, 250.0, s.PathLengthM)
	assert.Equal(t, 18.33, s.MeanSDI)
	assert.Equal(t, 3, s.ConditionCounts[model.ConditionGood])
	assert.Equal(t, 1, s.DegradedSegments)
	assert.Equal(t, 1, s.FallbackDepthCount)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil, nil, 100, 0)
	assert.Equal(t, 0, s.SegmentCount)
	assert.Equal(t, model.Condition(""), s.DominantCondition)
	assert.NotNil(t, s.ConditionCounts)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 41.67, Round2(125.0/3))
	assert.Equal(t, 2.5, Round2(2.4999999999))
}
