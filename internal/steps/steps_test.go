package steps

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/prepflow/internal/recommend"
)

func permutations(in []StepType) [][]StepType {
	if len(in) <= 1 {
		return [][]StepType{append([]StepType(nil), in...)}
	}
	var out [][]StepType
	for i := range in {
		rest := make([]StepType, 0, len(in)-1)
		rest = append(rest, in[:i]...)
		rest = append(rest, in[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]StepType{in[i]}, p...))
		}
	}
	return out
}

func TestBuildPayload_CanonicalOrderForEveryToggleOrder(t *testing.T) {
	want := []string{
		"1_scaling",
		"2_encoding",
		"3_binning",
		"4_feature_creation",
		"5_feature_creation",
		"6_feature_selection",
	}

	for _, perm := range permutations(CanonicalOrder()) {
		cfg := New()
		for _, st := range perm {
			cfg = Toggle(cfg, st)
		}

		payload := BuildPayload(cfg, nil)
		ids := make([]string, len(payload))
		for i, s := range payload {
			ids[i] = s.ID
		}
		require.Equal(t, want, ids, "toggle order %v", perm)
		assert.Equal(t, "polynomial", payload[3].Method)
		assert.Equal(t, "datetime", payload[4].Method)
	}
}

func TestBuildPayload_OnlyEnabled(t *testing.T) {
	cfg := New()
	cfg = Toggle(cfg, Binning)
	cfg = Toggle(cfg, Scaling)
	cfg = Toggle(cfg, Scaling)

	payload := BuildPayload(cfg, nil)
	require.Len(t, payload, 1)
	assert.Equal(t, TypeBinning, payload[0].Type)
	assert.Equal(t, "1_binning", payload[0].ID)
}

func TestBuildPayload_NormalizesMethods(t *testing.T) {
	tests := []struct {
		step   StepType
		method string
		want   string
	}{
		{Encoding, "onehot", "one-hot"},
		{Encoding, "OneHot", "one-hot"},
		{Scaling, "minmax", "min-max"},
		{Scaling, "", "standard"},
		{Binning, "equal_width", "uniform"},
		{Binning, "equal_frequency", "quantile"},
		{FeatureSelection, "", "correlation"},
		{Scaling, "robust", "robust"},
	}

	for _, tt := range tests {
		t.Run(string(tt.step)+"/"+tt.method, func(t *testing.T) {
			cfg := SetMethod(SetEnabled(New(), tt.step, true), tt.step, tt.method)
			payload := BuildPayload(cfg, nil)
			require.Len(t, payload, 1)
			assert.Equal(t, tt.want, payload[0].Method)
		})
	}
}

func TestBuildPayload_ParamDefaults(t *testing.T) {
	tests := []struct {
		name   string
		step   StepType
		method string
		key    string
		value  any
		want   any
	}{
		{"bins missing", Binning, "", "bins", nil, DefaultBins},
		{"bins unparsable", Binning, "", "bins", "many", DefaultBins},
		{"bins from string", Binning, "", "bins", "8", 8},
		{"bins from float", Binning, "", "bins", float64(3), 3},
		{"bins zero", Binning, "", "bins", 0, DefaultBins},
		{"degree missing", Polynomial, "", "degree", nil, DefaultDegree},
		{"degree set", Polynomial, "", "degree", 3, 3},
		{"threshold missing", FeatureSelection, "", "threshold", nil, DefaultThreshold},
		{"threshold out of range", FeatureSelection, "", "threshold", 4.0, DefaultThreshold},
		{"threshold set", FeatureSelection, "", "threshold", "0.8", 0.8},
		{"n_components missing", FeatureSelection, "pca", "n_components", nil, DefaultNComponents},
		{"n_components json", FeatureSelection, "pca", "n_components", json.Number("4"), 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := SetEnabled(New(), tt.step, true)
			cfg = SetMethod(cfg, tt.step, tt.method)
			cfg = SetParam(cfg, tt.step, tt.key, tt.value)

			payload := BuildPayload(cfg, nil)
			require.Len(t, payload, 1)
			assert.Equal(t, tt.want, payload[0].Params[tt.key])
		})
	}
}

func TestBuildPayload_DropsUnknownColumns(t *testing.T) {
	cfg := SetEnabled(New(), Scaling, true)
	cfg = SetColumns(cfg, Scaling, []string{"age", "ghost", "age", "income"})

	payload := BuildPayload(cfg, []string{"age", "income", "city"})
	require.Len(t, payload, 1)
	assert.Equal(t, []string{"age", "income"}, payload[0].Columns)
}

func TestBuildPayload_NullHandlingFirst(t *testing.T) {
	cfg := SetEnabled(New(), Encoding, true)
	cfg, err := SetFill(cfg, "city", recommend.FillStrategy{Strategy: recommend.StrategyMode})
	require.NoError(t, err)
	cfg, err = SetFill(cfg, "age", recommend.FillStrategy{Strategy: recommend.StrategyCustom, Value: "0"})
	require.NoError(t, err)

	payload := BuildPayload(cfg, nil)
	require.Len(t, payload, 2)

	nh := payload[0]
	assert.Equal(t, "1_null_handling", nh.ID)
	assert.Equal(t, MethodPerColumn, nh.Method)
	assert.Equal(t, []string{"age", "city"}, nh.Columns)

	strategies := nh.Params["strategies"].(map[string]any)
	assert.Equal(t, map[string]any{"strategy": "custom", "value": "0"}, strategies["age"])
	assert.Equal(t, map[string]any{"strategy": "mode"}, strategies["city"])

	assert.Equal(t, "2_encoding", payload[1].ID)
}

func TestBuildPayload_EmptyConfig(t *testing.T) {
	assert.Empty(t, BuildPayload(New(), []string{"a"}))
}

func TestOperationsArePure(t *testing.T) {
	base := SetColumns(SetEnabled(New(), Scaling, true), Scaling, []string{"a"})
	base = SetParam(base, Scaling, "x", 1)

	_ = Toggle(base, Scaling)
	_ = SetMethod(base, Scaling, "minmax")
	_ = SetColumns(base, Scaling, []string{"b"})
	_ = SetParam(base, Scaling, "x", 2)
	_ = SetTarget(base, "y")
	_, _ = SetFill(base, "a", recommend.FillStrategy{Strategy: recommend.StrategyMean})

	s := base.Step(Scaling)
	assert.True(t, s.Enabled)
	assert.Empty(t, s.Method)
	assert.Equal(t, []string{"a"}, s.Columns)
	assert.Equal(t, 1, s.Params["x"])
	assert.Empty(t, base.Target)
	assert.Empty(t, base.Fills)
}

func TestSetFill_RejectsCustomWithoutValue(t *testing.T) {
	cfg := New()
	out, err := SetFill(cfg, "age", recommend.FillStrategy{Strategy: recommend.StrategyCustom})
	require.ErrorIs(t, err, recommend.ErrCustomValueRequired)
	assert.Empty(t, out.Fills)
}

func TestSeedFills(t *testing.T) {
	cfg, err := SetFill(New(), "price", recommend.FillStrategy{Strategy: recommend.StrategyMean})
	require.NoError(t, err)

	cfg = SeedFills(cfg, []recommend.Column{
		{Name: "price", Dtype: "float64", NullCount: 3},
		{Name: "signup_date", Dtype: "int64", NullCount: 2},
		{Name: "payload", Dtype: "object", NullCount: 1},
		{Name: "id", Dtype: "int64", NullCount: 0},
	})

	assert.Equal(t, recommend.StrategyMean, cfg.Fills["price"].Strategy, "user fill kept")
	assert.Equal(t, recommend.StrategyMode, cfg.Fills["signup_date"].Strategy)
	assert.NotContains(t, cfg.Fills, "payload")
	assert.NotContains(t, cfg.Fills, "id")
}

func TestConfig_JSONRoundTrip(t *testing.T) {
	cfg := SetEnabled(New(), Binning, true)
	cfg = SetParam(cfg, Binning, "bins", 4)
	cfg = SetTarget(cfg, "churned")

	b, err := json.Marshal(cfg)
	require.NoError(t, err)

	var back Config
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, BuildPayload(cfg, nil)[0].Params, BuildPayload(back, nil)[0].Params)
	assert.Equal(t, "churned", back.Target)
}

func TestParseStepType(t *testing.T) {
	st, err := ParseStepType(" Scaling ")
	require.NoError(t, err)
	assert.Equal(t, Scaling, st)

	_, err = ParseStepType("outliers")
	assert.Error(t, err)
}

func TestParseRecipe(t *testing.T) {
	doc := `
dataset: sales.csv
target_column: churned
fills:
  age: {strategy: median}
steps:
  feature_selection: {enabled: true}
  scaling: {enabled: true, method: minmax, columns: [age]}
`
	rec, err := ParseRecipe(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "sales.csv", rec.Dataset)

	cfg, err := rec.Config()
	require.NoError(t, err)
	assert.Equal(t, "churned", cfg.Target)

	payload := BuildPayload(cfg, nil)
	require.Len(t, payload, 3)
	assert.Equal(t, TypeNullHandling, payload[0].Type)
	assert.Equal(t, "min-max", payload[1].Method)
	assert.Equal(t, TypeFeatureSelection, payload[2].Type)
}

func TestParseRecipe_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"unknown field", "dataset: a.csv\nmystery: 1\n"},
		{"unknown step", "dataset: a.csv\nsteps:\n  outliers: {enabled: true}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecipe(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestHasType(t *testing.T) {
	payload := BuildPayload(SetEnabled(New(), FeatureSelection, true), nil)
	assert.True(t, HasType(payload, TypeFeatureSelection))
	assert.False(t, HasType(payload, TypeScaling))
}
