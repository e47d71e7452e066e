// Package recommend suggests a null-fill strategy for each dataset column.
//
// Recommendations are deterministic and depend only on column metadata: the
// column name, the dtype reported by the backend preview, one sample value and
// the null count. Rules are evaluated top-down and the first match wins, so the
// order of the rules table is part of the contract. A numeric column whose name
// looks like a date (e.g. "signup_date" stored as int64) resolves through the
// date rule, never the numeric one.
package recommend

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Strategy is a null-fill method understood by the backend.
type Strategy string

const (
	StrategyMean   Strategy = "mean"
	StrategyMedian Strategy = "median"
	StrategyMode   Strategy = "mode"
	StrategyCustom Strategy = "custom"
)

// HighMissingThreshold is the null count above which the reason notes
// elevated missingness.
const HighMissingThreshold = 10

// ErrCustomValueRequired is returned by Validate when a custom strategy has no value.
var ErrCustomValueRequired = errors.New("custom fill strategy requires a value")

// Column is the metadata the engine looks at for a single column.
type Column struct {
	Name        string
	Dtype       string
	SampleValue any
	NullCount   int
}

// FillStrategy is a recommended (or user-chosen) way to fill nulls in a column.
type FillStrategy struct {
	Strategy Strategy `json:"strategy" yaml:"strategy"`
	Value    string   `json:"value,omitempty" yaml:"value,omitempty"`
	Reason   string   `json:"reason" yaml:"reason,omitempty"`
}

// Validate checks that the strategy is known and that custom fills carry a value.
func (f FillStrategy) Validate() error {
	switch f.Strategy {
	case StrategyMean, StrategyMedian, StrategyMode:
		return nil
	case StrategyCustom:
		if strings.TrimSpace(f.Value) == "" {
			return ErrCustomValueRequired
		}
		return nil
	default:
		return fmt.Errorf("unknown fill strategy %q", f.Strategy)
	}
}

// ColumnRecommendation pairs a column name with its recommended strategy.
type ColumnRecommendation struct {
	Column    string       `json:"column"`
	NullCount int          `json:"null_count"`
	Fill      FillStrategy `json:"fill"`
	Rule      string       `json:"rule"`
}

var (
	dateNamePattern    = regexp.MustCompile(`(?i)(date|time|timestamp|datetime|year|month|day|created|updated|(^|_)(at|on)$)`)
	dateDtypePattern   = regexp.MustCompile(`(?i)(date|time|period)`)
	boolDtypePattern   = regexp.MustCompile(`(?i)^bool(ean)?$`)
	numericDtypePat    = regexp.MustCompile(`(?i)^(u?int\d*|integer|float\d*|double|decimal|numeric|number|real)$`)
	integerDtypePat    = regexp.MustCompile(`(?i)^(u?int\d*|integer)$`)
	ratePattern        = regexp.MustCompile(`(?i)(rate|ratio|avg|average|mean|score|pct|percent)`)
	magnitudePattern   = regexp.MustCompile(`(?i)(amount|price|cost|salary|income|revenue|balance|fee|age|duration|length|weight|height|distance|size|quantity|qty|total|count)`)
	idCodePattern      = regexp.MustCompile(`(?i)((^|_)id($|_)|code|category)`)
	categoricalPattern = regexp.MustCompile(`(?i)((^|_)id($|_)|code|type|category|status|group|class|flag|label)`)
)

// rule is a single entry in the ordered recommendation table.
type rule struct {
	name     string
	match    func(Column) bool
	strategy Strategy
}

// rules is evaluated top-down; the first match wins.
//
// The numeric sub-rules (rate, magnitude, integer id, default) are flattened
// into consecutive entries guarded by isNumeric so each one stays
// independently testable.
var rules = []rule{
	{
		name:     "datetime",
		match:    func(c Column) bool { return dateNamePattern.MatchString(c.Name) || dateDtypePattern.MatchString(c.Dtype) },
		strategy: StrategyMode,
	},
	{
		name:     "boolean",
		match:    func(c Column) bool { return boolDtypePattern.MatchString(c.Dtype) || isBoolSample(c.SampleValue) },
		strategy: StrategyMode,
	},
	{
		name:     "numeric_rate",
		match:    func(c Column) bool { return isNumeric(c) && ratePattern.MatchString(c.Name) },
		strategy: StrategyMean,
	},
	{
		name:     "numeric_magnitude",
		match:    func(c Column) bool { return isNumeric(c) && magnitudePattern.MatchString(c.Name) },
		strategy: StrategyMedian,
	},
	{
		name: "numeric_identifier",
		match: func(c Column) bool {
			return isNumeric(c) && integerDtypePat.MatchString(c.Dtype) && idCodePattern.MatchString(c.Name)
		},
		strategy: StrategyMode,
	},
	{
		name:     "numeric_default",
		match:    isNumeric,
		strategy: StrategyMedian,
	},
	{
		name:     "categorical_name",
		match:    func(c Column) bool { return categoricalPattern.MatchString(c.Name) },
		strategy: StrategyMode,
	},
	{
		name:     "text_sample",
		match:    func(c Column) bool { return isTextSample(c.SampleValue) || isUnknownDtype(c.Dtype) },
		strategy: StrategyMode,
	},
}

// baseReasons holds the fixed sentence for each strategy.
var baseReasons = map[Strategy]string{
	StrategyMean:   "Mean keeps the overall average of this rate-like numeric column.",
	StrategyMedian: "Median is robust to outliers in this numeric column.",
	StrategyMode:   "Mode fills with the most frequent value, keeping the column within its observed categories.",
	StrategyCustom: "No safe default could be inferred; provide an explicit fill value.",
}

// Recommend returns the fill strategy for a column. It is a pure function.
func Recommend(c Column) FillStrategy {
	strategy, _ := evaluate(c)
	return FillStrategy{
		Strategy: strategy,
		Reason:   reason(strategy, c.NullCount),
	}
}

// RecommendAll recommends strategies for every column that has nulls,
// preserving the given column order.
func RecommendAll(cols []Column) []ColumnRecommendation {
	out := make([]ColumnRecommendation, 0, len(cols))
	for _, c := range cols {
		if c.NullCount <= 0 {
			continue
		}
		strategy, ruleName := evaluate(c)
		out = append(out, ColumnRecommendation{
			Column:    c.Name,
			NullCount: c.NullCount,
			Fill:      FillStrategy{Strategy: strategy, Reason: reason(strategy, c.NullCount)},
			Rule:      ruleName,
		})
	}
	return out
}

// Rules returns the rule names in evaluation order.
func Rules() []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.name
	}
	return names
}

// MatchRule reports which rule resolves the column ("fallback" if none).
func MatchRule(c Column) string {
	_, name := evaluate(c)
	return name
}

func evaluate(c Column) (Strategy, string) {
	for _, r := range rules {
		if r.match(c) {
			return r.strategy, r.name
		}
	}
	return StrategyCustom, "fallback"
}

func reason(s Strategy, nullCount int) string {
	base := baseReasons[s]
	if nullCount > HighMissingThreshold {
		return fmt.Sprintf("%s %d values are missing, so double-check that this fill does not skew the column.", base, nullCount)
	}
	return base
}

func isNumeric(c Column) bool {
	return numericDtypePat.MatchString(c.Dtype) || isNumericSample(c.SampleValue)
}

func isUnknownDtype(dtype string) bool {
	d := strings.TrimSpace(strings.ToLower(dtype))
	return d == "" || d == "unknown"
}
