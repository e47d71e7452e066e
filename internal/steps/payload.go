package steps

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Wire step types. Polynomial and datetime features share one backend type.
const (
	TypeNullHandling     = "null_handling"
	TypeScaling          = "scaling"
	TypeEncoding         = "encoding"
	TypeBinning          = "binning"
	TypeFeatureCreation  = "feature_creation"
	TypeFeatureSelection = "feature_selection"
)

// MethodPerColumn is the method of the null handling step.
const MethodPerColumn = "per_column"

// Numeric parameter defaults applied when a value is missing or unparsable.
const (
	DefaultBins        = 5
	DefaultDegree      = 2
	DefaultThreshold   = 0.95
	DefaultNComponents = 2
)

// PipelineStep is one entry of the run payload.
type PipelineStep struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Method  string         `json:"method"`
	Columns []string       `json:"columns"`
	Params  map[string]any `json:"params"`
}

// HasType reports whether any step in the payload has the given wire type.
func HasType(steps []PipelineStep, wireType string) bool {
	for _, s := range steps {
		if s.Type == wireType {
			return true
		}
	}
	return false
}

// defaultMethods is used when a step is enabled without a method.
var defaultMethods = map[StepType]string{
	Scaling:          "standard",
	Encoding:         "one-hot",
	Binning:          "uniform",
	Polynomial:       "polynomial",
	DatetimeFeatures: "datetime",
	FeatureSelection: "correlation",
}

// methodAliases maps UI tokens to backend tokens. Keys are lowercase.
var methodAliases = map[string]string{
	"onehot":          "one-hot",
	"one_hot":         "one-hot",
	"minmax":          "min-max",
	"min_max":         "min-max",
	"zscore":          "standard",
	"z-score":         "standard",
	"standardize":     "standard",
	"maxabs":          "max-abs",
	"max_abs":         "max-abs",
	"equal_width":     "uniform",
	"equal-width":     "uniform",
	"equal_frequency": "quantile",
	"equal-frequency": "quantile",
	"equal_freq":      "quantile",
	"k_means":         "kmeans",
	"k-means":         "kmeans",
	"label_encoding":  "label",
	"select_k_best":   "kbest",
}

// NormalizeMethod converts a UI method token to the backend token.
func NormalizeMethod(t StepType, method string) string {
	m := strings.ToLower(strings.TrimSpace(method))
	if m == "" {
		return defaultMethods[t]
	}
	if alias, ok := methodAliases[m]; ok {
		return alias
	}
	return m
}

// wireType returns the backend type for a step type.
func wireType(t StepType) string {
	switch t {
	case Polynomial, DatetimeFeatures:
		return TypeFeatureCreation
	default:
		return string(t)
	}
}

// BuildPayload returns the enabled steps in canonical order. The null
// handling step, when any fill is configured, comes first. Columns missing
// from datasetColumns are dropped; a nil datasetColumns keeps every column.
func BuildPayload(c Config, datasetColumns []string) []PipelineStep {
	var known map[string]struct{}
	if datasetColumns != nil {
		known = make(map[string]struct{}, len(datasetColumns))
		for _, col := range datasetColumns {
			known[col] = struct{}{}
		}
	}
	keep := func(cols []string) []string {
		out := make([]string, 0, len(cols))
		seen := make(map[string]struct{}, len(cols))
		for _, col := range cols {
			if _, dup := seen[col]; dup {
				continue
			}
			if known != nil {
				if _, ok := known[col]; !ok {
					continue
				}
			}
			seen[col] = struct{}{}
			out = append(out, col)
		}
		return out
	}

	var out []PipelineStep
	add := func(wire, method string, cols []string, params map[string]any) {
		n := len(out) + 1
		out = append(out, PipelineStep{
			ID:      fmt.Sprintf("%d_%s", n, wire),
			Type:    wire,
			Method:  method,
			Columns: cols,
			Params:  params,
		})
	}

	if fillCols := keep(c.FillColumns()); len(fillCols) > 0 {
		strategies := make(map[string]any, len(fillCols))
		for _, col := range fillCols {
			f := c.Fills[col]
			entry := map[string]any{"strategy": string(f.Strategy)}
			if f.Value != "" {
				entry["value"] = f.Value
			}
			strategies[col] = entry
		}
		add(TypeNullHandling, MethodPerColumn, fillCols, map[string]any{"strategies": strategies})
	}

	for _, t := range canonicalOrder {
		s, ok := c.Steps[t]
		if !ok || !s.Enabled {
			continue
		}
		method := NormalizeMethod(t, s.Method)
		add(wireType(t), method, keep(s.Columns), buildParams(t, method, s.Params))
	}

	return out
}

// buildParams copies user params and applies numeric defaults for the
// parameters a step type is known to use.
func buildParams(t StepType, method string, in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+1)
	for k, v := range in {
		out[k] = v
	}

	switch t {
	case Binning:
		out["bins"] = intParam(in, "bins", DefaultBins)
	case Polynomial:
		out["degree"] = intParam(in, "degree", DefaultDegree)
	case FeatureSelection:
		if method == "pca" {
			out["n_components"] = intParam(in, "n_components", DefaultNComponents)
		} else {
			out["threshold"] = floatParam(in, "threshold", DefaultThreshold)
		}
	}
	return out
}

func intParam(params map[string]any, key string, def int) int {
	f, ok := numeric(params[key])
	if !ok || f < 1 || f != float64(int(f)) {
		return def
	}
	return int(f)
}

func floatParam(params map[string]any, key string, def float64) float64 {
	f, ok := numeric(params[key])
	if !ok || f <= 0 || f > 1 {
		return def
	}
	return f
}

// numeric accepts the shapes params take after JSON, YAML or form decoding.
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
