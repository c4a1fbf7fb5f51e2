package llm

import "testing"

var riskSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"risks": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"severity":    map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
				},
				"required": []any{"severity", "description"},
			},
		},
		"risk_score": map[string]any{"type": "number"},
		"risk_level": map[string]any{"type": "string"},
	},
	"required": []any{"risks", "risk_score", "risk_level"},
}

func TestValidateAgainstSchema_Valid(t *testing.T) {
	data := []byte(`{
		"risks": [{"severity": "High", "description": "No limitation of liability clause."}],
		"risk_score": 8,
		"risk_level": "High"
	}`)
	if err := ValidateAgainstSchema(riskSchema, data); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateAgainstSchema_MissingRequiredField(t *testing.T) {
	data := []byte(`{"risks": [], "risk_score": 2}`)
	if err := ValidateAgainstSchema(riskSchema, data); err == nil {
		t.Error("expected validation error for missing risk_level")
	}
}

func TestValidateAgainstSchema_WrongType(t *testing.T) {
	data := []byte(`{"risks": [], "risk_score": "eight", "risk_level": "High"}`)
	if err := ValidateAgainstSchema(riskSchema, data); err == nil {
		t.Error("expected validation error for string risk_score")
	}
}

func TestValidateAgainstSchema_InvalidJSON(t *testing.T) {
	if err := ValidateAgainstSchema(riskSchema, []byte("{not json")); err == nil {
		t.Error("expected error for invalid json")
	}
}
