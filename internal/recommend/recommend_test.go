package recommend

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecommend(t *testing.T) {
	tests := []struct {
		name     string
		col      Column
		want     Strategy
		wantRule string
	}{
		{
			name:     "date name wins over integer dtype",
			col:      Column{Name: "signup_date", Dtype: "int64", SampleValue: float64(20240101)},
			want:     StrategyMode,
			wantRule: "datetime",
		},
		{
			name:     "datetime dtype",
			col:      Column{Name: "event", Dtype: "datetime64[ns]"},
			want:     StrategyMode,
			wantRule: "datetime",
		},
		{
			name:     "suffix _at is a timestamp",
			col:      Column{Name: "created_at", Dtype: "object", SampleValue: "2024-01-01"},
			want:     StrategyMode,
			wantRule: "datetime",
		},
		{
			name:     "boolean dtype",
			col:      Column{Name: "is_active", Dtype: "bool"},
			want:     StrategyMode,
			wantRule: "boolean",
		},
		{
			name:     "boolean sample with unknown dtype",
			col:      Column{Name: "churned", SampleValue: true},
			want:     StrategyMode,
			wantRule: "boolean",
		},
		{
			name:     "rate column uses mean",
			col:      Column{Name: "conversion_rate", Dtype: "float64", SampleValue: 0.12},
			want:     StrategyMean,
			wantRule: "numeric_rate",
		},
		{
			name:     "score from numeric sample",
			col:      Column{Name: "credit_score", SampleValue: float64(700)},
			want:     StrategyMean,
			wantRule: "numeric_rate",
		},
		{
			name:     "amount uses median",
			col:      Column{Name: "order_amount", Dtype: "float64"},
			want:     StrategyMedian,
			wantRule: "numeric_magnitude",
		},
		{
			name:     "age uses median",
			col:      Column{Name: "age", Dtype: "int64"},
			want:     StrategyMedian,
			wantRule: "numeric_magnitude",
		},
		{
			name:     "integer id uses mode",
			col:      Column{Name: "customer_id", Dtype: "int64"},
			want:     StrategyMode,
			wantRule: "numeric_identifier",
		},
		{
			name:     "float id is not an identifier",
			col:      Column{Name: "customer_id", Dtype: "float64"},
			want:     StrategyMedian,
			wantRule: "numeric_default",
		},
		{
			name:     "plain numeric uses median",
			col:      Column{Name: "temperature", Dtype: "float32"},
			want:     StrategyMedian,
			wantRule: "numeric_default",
		},
		{
			name:     "json number sample",
			col:      Column{Name: "reading", SampleValue: json.Number("3.2")},
			want:     StrategyMedian,
			wantRule: "numeric_default",
		},
		{
			name:     "categorical name",
			col:      Column{Name: "status", Dtype: "object"},
			want:     StrategyMode,
			wantRule: "categorical_name",
		},
		{
			name:     "string sample",
			col:      Column{Name: "city", Dtype: "object", SampleValue: "Oslo"},
			want:     StrategyMode,
			wantRule: "text_sample",
		},
		{
			name:     "array sample",
			col:      Column{Name: "tags", Dtype: "object", SampleValue: []any{"a", "b"}},
			want:     StrategyMode,
			wantRule: "text_sample",
		},
		{
			name:     "unknown dtype",
			col:      Column{Name: "blob"},
			want:     StrategyMode,
			wantRule: "text_sample",
		},
		{
			name:     "nothing inferable asks for a value",
			col:      Column{Name: "payload", Dtype: "object"},
			want:     StrategyCustom,
			wantRule: "fallback",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Recommend(tt.col)
			assert.Equal(t, tt.want, got.Strategy)
			assert.Equal(t, tt.wantRule, MatchRule(tt.col))
			assert.NotEmpty(t, got.Reason)
		})
	}
}

func TestRecommend_Deterministic(t *testing.T) {
	col := Column{Name: "signup_date", Dtype: "int64", NullCount: 3}
	first := Recommend(col)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Recommend(col))
	}
}

func TestRecommend_ReasonMentionsHighMissingness(t *testing.T) {
	low := Recommend(Column{Name: "price", Dtype: "float64", NullCount: HighMissingThreshold})
	high := Recommend(Column{Name: "price", Dtype: "float64", NullCount: HighMissingThreshold + 1})

	assert.Equal(t, baseReasons[StrategyMedian], low.Reason)
	assert.True(t, strings.HasPrefix(high.Reason, baseReasons[StrategyMedian]))
	assert.Contains(t, high.Reason, "11 values are missing")
}

func TestRecommendAll_SkipsCompleteColumns(t *testing.T) {
	cols := []Column{
		{Name: "id", Dtype: "int64", NullCount: 0},
		{Name: "price", Dtype: "float64", NullCount: 4},
		{Name: "city", Dtype: "object", SampleValue: "Oslo", NullCount: 12},
	}

	recs := RecommendAll(cols)
	require.Len(t, recs, 2)
	assert.Equal(t, "price", recs[0].Column)
	assert.Equal(t, StrategyMedian, recs[0].Fill.Strategy)
	assert.Equal(t, "city", recs[1].Column)
	assert.Equal(t, "text_sample", recs[1].Rule)
	assert.Equal(t, 12, recs[1].NullCount)
}

func TestRules_Order(t *testing.T) {
	assert.Equal(t, []string{
		"datetime",
		"boolean",
		"numeric_rate",
		"numeric_magnitude",
		"numeric_identifier",
		"numeric_default",
		"categorical_name",
		"text_sample",
	}, Rules())
}

func TestFillStrategy_Validate(t *testing.T) {
	assert.NoError(t, FillStrategy{Strategy: StrategyMean}.Validate())
	assert.NoError(t, FillStrategy{Strategy: StrategyCustom, Value: "0"}.Validate())
	assert.ErrorIs(t, FillStrategy{Strategy: StrategyCustom, Value: "  "}.Validate(), ErrCustomValueRequired)
	assert.Error(t, FillStrategy{Strategy: "interpolate"}.Validate())
}
