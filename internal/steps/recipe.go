package steps

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/prepflow/internal/recommend"
)

// Recipe is the YAML form of a Config plus the dataset it targets.
//
//	dataset: sales.csv
//	target_column: churned
//	auto_fill: true
//	fills:
//	  age: {strategy: median}
//	steps:
//	  scaling: {enabled: true, method: minmax, columns: [age, income]}
//	  binning: {enabled: true, columns: [age], params: {bins: 4}}
type Recipe struct {
	Dataset  string                            `yaml:"dataset"`
	Target   string                            `yaml:"target_column,omitempty"`
	AutoFill bool                              `yaml:"auto_fill,omitempty"`
	Fills    map[string]recommend.FillStrategy `yaml:"fills,omitempty"`
	Steps    map[string]StepConfig             `yaml:"steps"`
}

// ParseRecipe decodes a recipe and rejects unknown fields and step types.
func ParseRecipe(r io.Reader) (*Recipe, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var rec Recipe
	if err := dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("recipe is empty")
		}
		return nil, fmt.Errorf("decode recipe: %w", err)
	}
	for name := range rec.Steps {
		if _, err := ParseStepType(name); err != nil {
			return nil, fmt.Errorf("recipe: %w", err)
		}
	}
	return &rec, nil
}

// LoadRecipe reads and parses a recipe file.
func LoadRecipe(path string) (*Recipe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recipe: %w", err)
	}
	defer f.Close()
	return ParseRecipe(f)
}

// Config builds the step configuration described by the recipe.
func (r *Recipe) Config() (Config, error) {
	cfg := New()
	for name, sc := range r.Steps {
		t, err := ParseStepType(name)
		if err != nil {
			return cfg, err
		}
		cfg = SetStep(cfg, t, sc)
	}
	for _, col := range sortedKeys(r.Fills) {
		var err error
		if cfg, err = SetFill(cfg, col, r.Fills[col]); err != nil {
			return cfg, err
		}
	}
	return SetTarget(cfg, r.Target), nil
}

func sortedKeys(m map[string]recommend.FillStrategy) []string {
	c := Config{Fills: m}
	return c.FillColumns()
}
