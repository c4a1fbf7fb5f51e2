package report

import (
	"strings"
	"testing"
	"time"
)

func fullResults() map[string]map[string]any {
	return map[string]map[string]any{
		"parties": {
			"parties": []any{"CloudTech Solutions Inc.", "Global Retail Enterprises LLC"},
		},
		"financials": {
			"financial_terms": []any{"Total contract value: $450,000", "Net 30 payment terms"},
		},
		"risks": {
			"risks": []any{
				map[string]any{"severity": "High", "description": "No limitation of liability clause"},
				map[string]any{"severity": "Medium", "description": "Auto-renewal without notice period"},
			},
			"risk_score": float64(7),
			"risk_level": "High",
		},
	}
}

func TestRender_FullReport(t *testing.T) {
	got := Render(Analysis{
		Filename:    "contract.pdf",
		Pages:       3,
		GeneratedAt: time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
		Results:     fullResults(),
	})

	want := []string{
		"## LEGAL DOCUMENT ANALYSIS REPORT",
		"### EXECUTIVE SUMMARY",
		"* **Document:** contract.pdf",
		"* **Pages:** 3",
		"* **Risk Level:** High",
		"* **Risk Score:** 7/10",
		"* **Analysis Date:** 2025-06-01 09:30:00",
		"### KEY PARTIES",
		"* **CloudTech Solutions Inc.**",
		"* **Global Retail Enterprises LLC**",
		"### FINANCIAL TERMS",
		"* Total contract value: $450,000",
		"### IDENTIFIED RISKS",
		"1. **No limitation of liability clause** (High severity)",
		"2. **Auto-renewal without notice period** (Medium severity)",
		"### RECOMMENDATIONS",
		"1. Based on the risk score of **7/10**, this document is considered **High risk**.",
		"3. Always have legal counsel review contracts before execution.",
		"> **Disclaimer:**",
	}
	for _, w := range want {
		if !strings.Contains(got, w) {
			t.Errorf("report missing %q:\n%s", w, got)
		}
	}
	if strings.Contains(got, "Low-confidence sections") {
		t.Errorf("clean report flags low confidence:\n%s", got)
	}
}

func TestRender_MalformedSectionDegrades(t *testing.T) {
	results := fullResults()
	delete(results, "parties")

	got := Render(Analysis{Filename: "contract.txt", GeneratedAt: time.Now(), Results: results})

	if !strings.Contains(got, "could not be parsed") {
		t.Errorf("degraded section not annotated:\n%s", got)
	}
	if !strings.Contains(got, "* **Low-confidence sections:** 1") {
		t.Errorf("summary does not count degraded sections:\n%s", got)
	}
	// The rest of the report still renders.
	if !strings.Contains(got, "* Total contract value: $450,000") {
		t.Errorf("intact sections missing:\n%s", got)
	}
	if !strings.Contains(got, "* **Risk Score:** 7/10") {
		t.Errorf("summary missing:\n%s", got)
	}
}

func TestRender_MalformedRiskAssessment(t *testing.T) {
	results := fullResults()
	delete(results, "risks")

	got := Render(Analysis{Filename: "contract.txt", GeneratedAt: time.Now(), Results: results})

	if !strings.Contains(got, "* **Risk Level:** not available") {
		t.Errorf("summary does not flag missing risk level:\n%s", got)
	}
	if !strings.Contains(got, "1. The risk assessment was not available") {
		t.Errorf("recommendations do not flag missing assessment:\n%s", got)
	}
	if !strings.Contains(got, "3. Always have legal counsel review contracts before execution.") {
		t.Errorf("canned counsel recommendation missing:\n%s", got)
	}
}

func TestRender_EmptyLists(t *testing.T) {
	got := Render(Analysis{
		GeneratedAt: time.Now(),
		Results: map[string]map[string]any{
			"parties":    {"parties": []any{}},
			"financials": {"financial_terms": []any{}},
			"risks":      {"risks": []any{}, "risk_score": float64(1), "risk_level": "Low"},
		},
	})
	for _, w := range []string{
		"* No parties identified.",
		"* No financial terms identified.",
		"No significant risks identified.",
	} {
		if !strings.Contains(got, w) {
			t.Errorf("report missing %q:\n%s", w, got)
		}
	}
}

func TestRender_LevelFallsBackToBand(t *testing.T) {
	got := Render(Analysis{
		GeneratedAt: time.Now(),
		Results: map[string]map[string]any{
			"risks": {"risks": []any{}, "risk_score": float64(5)},
		},
	})
	if !strings.Contains(got, "* **Risk Level:** Medium") {
		t.Errorf("level not derived from score:\n%s", got)
	}
}

func TestBand(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0, "Low"},
		{3, "Low"},
		{3.5, "Medium"},
		{4, "Medium"},
		{6, "Medium"},
		{7, "High"},
		{10, "High"},
	}
	for _, tt := range tests {
		if got := Band(tt.score); got != tt.want {
			t.Errorf("Band(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestFormatScore(t *testing.T) {
	if got := formatScore(7); got != "7" {
		t.Errorf("formatScore(7) = %q", got)
	}
	if got := formatScore(7.5); got != "7.5" {
		t.Errorf("formatScore(7.5) = %q", got)
	}
}

func TestNumber_StringInput(t *testing.T) {
	if n, ok := number("8"); !ok || n != 8 {
		t.Errorf("number(\"8\") = %v, %v", n, ok)
	}
	if _, ok := number("high"); ok {
		t.Error("number(\"high\") parsed")
	}
	if _, ok := number(nil); ok {
		t.Error("number(nil) parsed")
	}
}
