package prompt

import (
	"strings"
	"testing"

	"lexiscan/internal/llm"
)

func TestLoad(t *testing.T) {
	lib, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := lib.Analysis[0]; got.Kind != KindExtract || got.Name != "extract" {
		t.Errorf("first stage = %q (%s), want extract", got.Name, got.Kind)
	}
	if got := lib.Analysis[len(lib.Analysis)-1]; got.Kind != KindRender || got.Name != "report" {
		t.Errorf("last stage = %q (%s), want report", got.Name, got.Kind)
	}

	var names []string
	for _, s := range lib.ModelStages() {
		names = append(names, s.Name)
	}
	want := []string{"parties", "financials", "risks"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("model stages = %v, want %v", names, want)
	}

	for _, s := range lib.ModelStages() {
		shape := s.OutputShape()
		if shape == nil {
			t.Errorf("stage %q has no output shape", s.Name)
			continue
		}
		if shape.Name != s.Name {
			t.Errorf("stage %q shape name = %q", s.Name, shape.Name)
		}
		if strings.TrimSpace(s.System) == "" {
			t.Errorf("stage %q has no system prompt", s.Name)
		}
	}

	if lib.Comparison.Kind != KindModel {
		t.Errorf("comparison kind = %q, want %q", lib.Comparison.Kind, KindModel)
	}
	if lib.Comparison.OutputShape() == nil {
		t.Error("comparison has no output shape")
	}
}

func TestLoad_StageLookup(t *testing.T) {
	lib, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s, ok := lib.Stage("risks"); !ok || s.Name != "risks" {
		t.Errorf("Stage(risks) = %v, %v", s.Name, ok)
	}
	if _, ok := lib.Stage("nope"); ok {
		t.Error("Stage(nope) found")
	}
}

// The embedded shapes double as response schemas, so each must accept the
// payload its stage is expected to produce.
func TestLoad_ShapesAcceptExpectedPayloads(t *testing.T) {
	lib, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	samples := map[string]string{
		"parties":    `{"parties":["CloudTech Solutions Inc.","Global Retail Enterprises LLC"]}`,
		"financials": `{"financial_terms":["Total contract value: $450,000","Net 30 payment terms"]}`,
		"risks":      `{"risks":[{"severity":"High","description":"No limitation of liability clause"}],"risk_score":7,"risk_level":"High"}`,
		"comparison": `{"a":{"risk_score":3,"risk_level":"Low","estimated_value":"$450,000"},"b":{"risk_score":7,"risk_level":"High"},"observations":["Contract A caps liability at fees paid"],"recommendation":"Contract A appears more favorable."}`,
	}
	for name, payload := range samples {
		stage := lib.Comparison
		if name != "comparison" {
			var ok bool
			stage, ok = lib.Stage(name)
			if !ok {
				t.Fatalf("stage %q not found", name)
			}
		}
		if err := llm.ValidateAgainstSchema(stage.Shape, []byte(payload)); err != nil {
			t.Errorf("stage %q rejects expected payload: %v", name, err)
		}
	}
}

func TestValidate_Errors(t *testing.T) {
	extract := Stage{Name: "extract", Kind: KindExtract}
	render := Stage{Name: "report", Kind: KindRender}
	model := func(name, instruction string, inputs ...string) Stage {
		return Stage{
			Name:        name,
			Kind:        KindModel,
			Inputs:      inputs,
			Instruction: instruction,
			Shape:       map[string]any{"type": "object"},
		}
	}
	comparison := Stage{
		Name:        "comparison",
		Kind:        KindModel,
		Inputs:      []string{"document_a", "document_b"},
		Instruction: "{{document_a}} {{document_b}}",
		Shape:       map[string]any{"type": "object"},
	}

	tests := []struct {
		name    string
		lib     Library
		wantErr string
	}{
		{
			name:    "empty chain",
			lib:     Library{Comparison: comparison},
			wantErr: "no analysis stages",
		},
		{
			name: "first stage not extract",
			lib: Library{
				Analysis:   []Stage{model("parties", "{{document}}", "document"), render},
				Comparison: comparison,
			},
			wantErr: "must have kind",
		},
		{
			name: "last stage not render",
			lib: Library{
				Analysis:   []Stage{extract, model("parties", "{{document}}", "document")},
				Comparison: comparison,
			},
			wantErr: "must have kind",
		},
		{
			name: "duplicate stage name",
			lib: Library{
				Analysis: []Stage{
					extract,
					model("parties", "{{document}}", "document"),
					model("parties", "{{document}}", "document"),
					render,
				},
				Comparison: comparison,
			},
			wantErr: "duplicate name",
		},
		{
			name: "model stage without shape",
			lib: Library{
				Analysis: []Stage{
					extract,
					{Name: "parties", Kind: KindModel, Inputs: []string{"document"}, Instruction: "{{document}}"},
					render,
				},
				Comparison: comparison,
			},
			wantErr: "no output shape",
		},
		{
			name: "input refers to later stage",
			lib: Library{
				Analysis: []Stage{
					extract,
					model("parties", "{{document}} {{risks.risks}}", "document", "risks.risks"),
					model("risks", "{{document}}", "document"),
					render,
				},
				Comparison: comparison,
			},
			wantErr: "not an earlier stage",
		},
		{
			name: "placeholder not declared",
			lib: Library{
				Analysis:   []Stage{extract, model("parties", "{{document}}"), render},
				Comparison: comparison,
			},
			wantErr: "not declared in inputs",
		},
		{
			name: "missing comparison",
			lib: Library{
				Analysis: []Stage{extract, model("parties", "{{document}}", "document"), render},
			},
			wantErr: "comparison stage missing",
		},
		{
			name: "comparison name collides",
			lib: Library{
				Analysis: []Stage{extract, model("parties", "{{document}}", "document"), render},
				Comparison: Stage{
					Name:        "parties",
					Kind:        KindModel,
					Inputs:      []string{"document_a"},
					Instruction: "{{document_a}}",
					Shape:       map[string]any{"type": "object"},
				},
			},
			wantErr: "collides",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.lib.Validate()
			if err == nil {
				t.Fatal("Validate returned nil error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}
