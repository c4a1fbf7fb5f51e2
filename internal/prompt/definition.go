// Package prompt holds the stage chain definition and builds model prompts
// from it. The chain is declared in an embedded YAML file so the stage
// order, instructions, and output shapes live in one reviewable place.
package prompt

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"lexiscan/internal/llm"
)

//go:embed stages.yaml
var stagesYAML []byte

// StageKind says how the pipeline executes a stage.
type StageKind string

const (
	// KindExtract normalizes the parsed document. No model call.
	KindExtract StageKind = "extract"
	// KindModel builds a prompt and invokes the model.
	KindModel StageKind = "model"
	// KindRender assembles the final report from prior results. No model call.
	KindRender StageKind = "render"
)

// Stage is one step of the analysis chain.
type Stage struct {
	Name        string         `yaml:"name"`
	Title       string         `yaml:"title"`
	Kind        StageKind      `yaml:"kind"`
	System      string         `yaml:"system"`
	Inputs      []string       `yaml:"inputs"`
	Instruction string         `yaml:"instruction"`
	Shape       map[string]any `yaml:"shape"`
}

// OutputShape returns the declared response shape, or nil for stages
// that do not call the model.
func (s Stage) OutputShape() *llm.Shape {
	if len(s.Shape) == 0 {
		return nil
	}
	return &llm.Shape{Name: s.Name, Schema: s.Shape}
}

// Library is the full set of stage definitions: the sequential analysis
// chain plus the standalone comparison stage.
type Library struct {
	Analysis   []Stage `yaml:"analysis"`
	Comparison Stage   `yaml:"comparison"`
}

// Load parses and validates the embedded stage definitions.
func Load() (*Library, error) {
	var lib Library
	if err := yaml.Unmarshal(stagesYAML, &lib); err != nil {
		return nil, fmt.Errorf("parse stages: %w", err)
	}
	if err := lib.Validate(); err != nil {
		return nil, fmt.Errorf("validate stages: %w", err)
	}
	return &lib, nil
}

// Stage returns the analysis stage with the given name.
func (l *Library) Stage(name string) (Stage, bool) {
	for _, s := range l.Analysis {
		if s.Name == name {
			return s, true
		}
	}
	return Stage{}, false
}

// ModelStages returns the analysis stages that invoke the model, in order.
func (l *Library) ModelStages() []Stage {
	var out []Stage
	for _, s := range l.Analysis {
		if s.Kind == KindModel {
			out = append(out, s)
		}
	}
	return out
}

// ComparisonStages returns the shorter chain used for two-document runs:
// the shared extract stage, the comparison stage, and the shared render
// stage.
func (l *Library) ComparisonStages() []Stage {
	return []Stage{l.Analysis[0], l.Comparison, l.Analysis[len(l.Analysis)-1]}
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-z][a-z0-9_]*(?:\.[a-z][a-z0-9_]*)?)\s*\}\}`)

// Validate checks the structural rules of the chain: the first stage
// extracts, the last renders, names are unique, and every input and
// placeholder refers to the document or to a field of an earlier stage.
func (l *Library) Validate() error {
	if len(l.Analysis) == 0 {
		return fmt.Errorf("no analysis stages defined")
	}
	if first := l.Analysis[0]; first.Kind != KindExtract {
		return fmt.Errorf("first stage %q must have kind %q, got %q", first.Name, KindExtract, first.Kind)
	}
	if last := l.Analysis[len(l.Analysis)-1]; last.Kind != KindRender {
		return fmt.Errorf("last stage %q must have kind %q, got %q", last.Name, KindRender, last.Kind)
	}

	seen := make(map[string]bool)
	for i, s := range l.Analysis {
		if err := validateStage(s, seen, []string{"document"}); err != nil {
			return fmt.Errorf("stage %d (%s): %w", i, s.Name, err)
		}
		if s.Kind == KindExtract && i != 0 {
			return fmt.Errorf("stage %q: kind %q only allowed first", s.Name, KindExtract)
		}
		if s.Kind == KindRender && i != len(l.Analysis)-1 {
			return fmt.Errorf("stage %q: kind %q only allowed last", s.Name, KindRender)
		}
		seen[s.Name] = true
	}

	c := l.Comparison
	if c.Name == "" {
		return fmt.Errorf("comparison stage missing")
	}
	if c.Kind != KindModel {
		return fmt.Errorf("comparison stage %q must have kind %q, got %q", c.Name, KindModel, c.Kind)
	}
	if seen[c.Name] {
		return fmt.Errorf("comparison stage name %q collides with an analysis stage", c.Name)
	}
	if err := validateStage(c, nil, []string{"document_a", "document_b"}); err != nil {
		return fmt.Errorf("comparison stage (%s): %w", c.Name, err)
	}
	return nil
}

func validateStage(s Stage, earlier map[string]bool, docRefs []string) error {
	if s.Name == "" {
		return fmt.Errorf("missing name")
	}
	if earlier[s.Name] {
		return fmt.Errorf("duplicate name")
	}
	switch s.Kind {
	case KindExtract, KindModel, KindRender:
	default:
		return fmt.Errorf("unknown kind %q", s.Kind)
	}
	if s.Kind == KindModel {
		if strings.TrimSpace(s.Instruction) == "" {
			return fmt.Errorf("model stage has no instruction")
		}
		if len(s.Shape) == 0 {
			return fmt.Errorf("model stage has no output shape")
		}
	}

	declared := make(map[string]bool, len(s.Inputs))
	for _, ref := range s.Inputs {
		if err := validateRef(ref, earlier, docRefs); err != nil {
			return err
		}
		declared[ref] = true
	}
	for _, m := range placeholderRe.FindAllStringSubmatch(s.Instruction, -1) {
		if !declared[m[1]] {
			return fmt.Errorf("placeholder {{%s}} not declared in inputs", m[1])
		}
	}
	return nil
}

func validateRef(ref string, earlier map[string]bool, docRefs []string) error {
	for _, d := range docRefs {
		if ref == d {
			return nil
		}
	}
	stage, _, ok := strings.Cut(ref, ".")
	if !ok {
		return fmt.Errorf("input %q must be a document reference or stage.field", ref)
	}
	if !earlier[stage] {
		return fmt.Errorf("input %q refers to stage %q which is not an earlier stage", ref, stage)
	}
	return nil
}
