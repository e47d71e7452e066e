// Package steps turns the mutable step configuration assembled by the user
// into the ordered pipeline payload the processing backend expects.
//
// Every update operation is pure: it takes a Config and returns a new one
// without touching the input, so a Config value can be shared freely between
// the session store and the HTTP handlers.
package steps

import (
	"fmt"
	"sort"
	"strings"

	"github.com/JonMunkholm/prepflow/internal/recommend"
)

// StepType identifies a configurable step.
type StepType string

const (
	Scaling          StepType = "scaling"
	Encoding         StepType = "encoding"
	Binning          StepType = "binning"
	Polynomial       StepType = "polynomial"
	DatetimeFeatures StepType = "datetime"
	FeatureSelection StepType = "feature_selection"
)

// canonicalOrder is the order steps are sent to the backend in, regardless
// of the order they were enabled.
var canonicalOrder = []StepType{
	Scaling,
	Encoding,
	Binning,
	Polynomial,
	DatetimeFeatures,
	FeatureSelection,
}

// CanonicalOrder returns the configurable step types in payload order.
func CanonicalOrder() []StepType {
	return append([]StepType(nil), canonicalOrder...)
}

// ParseStepType validates a step type coming from a URL or a recipe.
func ParseStepType(s string) (StepType, error) {
	t := StepType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range canonicalOrder {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown step type %q", s)
}

// StepConfig is the user's settings for one step type.
type StepConfig struct {
	Enabled bool           `json:"enabled" yaml:"enabled"`
	Method  string         `json:"method,omitempty" yaml:"method,omitempty"`
	Columns []string       `json:"columns,omitempty" yaml:"columns,omitempty"`
	Params  map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

func (s StepConfig) clone() StepConfig {
	out := StepConfig{Enabled: s.Enabled, Method: s.Method}
	if s.Columns != nil {
		out.Columns = append([]string(nil), s.Columns...)
	}
	if s.Params != nil {
		out.Params = make(map[string]any, len(s.Params))
		for k, v := range s.Params {
			out.Params[k] = v
		}
	}
	return out
}

// Config is the complete recipe state for one dataset.
type Config struct {
	Steps  map[StepType]StepConfig           `json:"steps"`
	Fills  map[string]recommend.FillStrategy `json:"fills,omitempty"`
	Target string                            `json:"target_column,omitempty"`
}

// New returns an empty configuration. It is what a file change resets to.
func New() Config {
	return Config{
		Steps: make(map[StepType]StepConfig),
		Fills: make(map[string]recommend.FillStrategy),
	}
}

// Clone returns a deep copy of c.
func (c Config) Clone() Config {
	out := New()
	for t, s := range c.Steps {
		out.Steps[t] = s.clone()
	}
	for col, f := range c.Fills {
		out.Fills[col] = f
	}
	out.Target = c.Target
	return out
}

// Step returns the settings for t, or the zero StepConfig.
func (c Config) Step(t StepType) StepConfig {
	return c.Steps[t].clone()
}

// EnabledTypes lists enabled step types in canonical order.
func (c Config) EnabledTypes() []StepType {
	var out []StepType
	for _, t := range canonicalOrder {
		if c.Steps[t].Enabled {
			out = append(out, t)
		}
	}
	return out
}

// Toggle flips the enabled flag of a step.
func Toggle(c Config, t StepType) Config {
	out := c.Clone()
	s := out.Steps[t]
	s.Enabled = !s.Enabled
	out.Steps[t] = s
	return out
}

// SetEnabled sets the enabled flag of a step.
func SetEnabled(c Config, t StepType, enabled bool) Config {
	out := c.Clone()
	s := out.Steps[t]
	s.Enabled = enabled
	out.Steps[t] = s
	return out
}

// SetMethod sets the method token for a step. The token is normalized only
// when the payload is built.
func SetMethod(c Config, t StepType, method string) Config {
	out := c.Clone()
	s := out.Steps[t]
	s.Method = method
	out.Steps[t] = s
	return out
}

// SetColumns replaces the target columns of a step.
func SetColumns(c Config, t StepType, cols []string) Config {
	out := c.Clone()
	s := out.Steps[t]
	s.Columns = append([]string(nil), cols...)
	out.Steps[t] = s
	return out
}

// SetParam sets a single step parameter. A nil value removes it.
func SetParam(c Config, t StepType, key string, value any) Config {
	out := c.Clone()
	s := out.Steps[t]
	if value == nil {
		delete(s.Params, key)
	} else {
		if s.Params == nil {
			s.Params = make(map[string]any)
		}
		s.Params[key] = value
	}
	out.Steps[t] = s
	return out
}

// SetStep replaces the full settings of a step.
func SetStep(c Config, t StepType, sc StepConfig) Config {
	out := c.Clone()
	out.Steps[t] = sc.clone()
	return out
}

// SetTarget sets the target column used by feature selection.
func SetTarget(c Config, target string) Config {
	out := c.Clone()
	out.Target = strings.TrimSpace(target)
	return out
}

// SetFill sets the null-fill strategy for a column.
func SetFill(c Config, col string, f recommend.FillStrategy) (Config, error) {
	if strings.TrimSpace(col) == "" {
		return c, fmt.Errorf("fill column is required")
	}
	if err := f.Validate(); err != nil {
		return c, fmt.Errorf("fill for %s: %w", col, err)
	}
	out := c.Clone()
	out.Fills[col] = f
	return out, nil
}

// ClearFill removes the null-fill strategy for a column.
func ClearFill(c Config, col string) Config {
	out := c.Clone()
	delete(out.Fills, col)
	return out
}

// SeedFills adds a recommended fill for every column with nulls that the user
// has not configured yet. Existing fills are never overwritten.
func SeedFills(c Config, cols []recommend.Column) Config {
	out := c.Clone()
	for _, rec := range recommend.RecommendAll(cols) {
		if _, ok := out.Fills[rec.Column]; ok {
			continue
		}
		// Custom recommendations carry no value yet; the user must supply one.
		if rec.Fill.Strategy == recommend.StrategyCustom {
			continue
		}
		out.Fills[rec.Column] = rec.Fill
	}
	return out
}

// FillColumns returns the configured fill columns, sorted.
func (c Config) FillColumns() []string {
	cols := make([]string, 0, len(c.Fills))
	for col := range c.Fills {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}
