package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lexiscan/internal/config"
	"lexiscan/internal/llm"
	"lexiscan/internal/pipeline"
)

const consultingAgreement = `CONSULTING SERVICES AGREEMENT

This Agreement is made between Harbor Analytics LLC ("Consultant") and
Northwind Manufacturing Corp. ("Client"), effective June 1, 2024.

Client shall pay Consultant a fee of $15,000 per month, invoiced monthly
with payment due Net 45. Either party may terminate with 30 days written
notice. This Agreement is governed by the laws of the State of Washington.`

type stubClient struct{}

func (stubClient) Invoke(ctx context.Context, req llm.Request) (*llm.Result, error) {
	var fields map[string]any
	switch req.Stage {
	case "parties":
		fields = map[string]any{
			"parties":        []any{"Harbor Analytics LLC", "Northwind Manufacturing Corp."},
			"effective_date": "2024-06-01",
			"jurisdiction":   "Washington",
		}
	case "financials":
		fields = map[string]any{
			"financial_terms": []any{"$15,000 per month"},
			"payment_terms":   "Net 45",
			"penalties":       "",
		}
	case "risks":
		fields = map[string]any{
			"risk_score": 3.0,
			"risk_level": "Low",
			"risks": []any{
				map[string]any{"description": "Short termination notice period", "severity": "low"},
			},
		}
	case "comparison":
		fields = map[string]any{
			"a":              map[string]any{"risk_score": 3.0, "risk_level": "Low", "estimated_value": "$180,000"},
			"b":              map[string]any{"risk_score": 5.0, "risk_level": "Medium"},
			"observations":   []any{"Document B raises the monthly fee."},
			"recommendation": "Document A appears more favorable.",
		}
	default:
		return nil, fmt.Errorf("unexpected stage %q", req.Stage)
	}
	raw, _ := json.Marshal(fields)
	return &llm.Result{Fields: fields, Raw: string(raw)}, nil
}

func (stubClient) Model() string { return "stub-model" }
func (stubClient) Close()        {}

type failingClient struct{}

func (failingClient) Invoke(ctx context.Context, req llm.Request) (*llm.Result, error) {
	return nil, &llm.InvocationError{Kind: llm.KindAuth, Backend: "stub", StatusCode: 401, Message: "bad key"}
}

func (failingClient) Model() string { return "stub-model" }
func (failingClient) Close()        {}

// runCLI executes the root command end-to-end with a substituted model
// client and captured output.
func runCLI(t *testing.T, client llm.ModelClient, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	t.Setenv("LLM_BACKEND", "gemini")
	t.Setenv("GEMINI_API_KEY", "test-key")

	orig := newModelClient
	newModelClient = func(cfg config.Config, log *slog.Logger) (llm.ModelClient, *llm.Stats, error) {
		return client, llm.NewStats(time.Hour), nil
	}
	t.Cleanup(func() { newModelClient = orig })

	resetFlags()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	execErr := rootCmd.Execute()
	return out.String(), errOut.String(), execErr
}

// resetFlags restores flag defaults between Execute calls; flag values
// persist on the package-level structs otherwise.
func resetFlags() {
	analyzeFlags.text = ""
	analyzeFlags.output = ""
	analyzeFlags.format = "md"
	analyzeFlags.parallel = 2
	compareFlags.output = ""
	compareFlags.format = "md"
	rootFlags.verbose = false
}

func writeTempDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAnalyzeCommand_TextToStdout(t *testing.T) {
	stdout, _, err := runCLI(t, stubClient{}, "analyze", "--text", consultingAgreement)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	for _, want := range []string{
		"LEGAL DOCUMENT ANALYSIS REPORT",
		"Harbor Analytics LLC",
		"$15,000 per month",
		"RECOMMENDATIONS",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q", want)
		}
	}
}

func TestAnalyzeCommand_BatchToDirectory(t *testing.T) {
	dir := t.TempDir()
	a := writeTempDoc(t, dir, "first.txt", consultingAgreement)
	b := writeTempDoc(t, dir, "second.txt", strings.ReplaceAll(consultingAgreement, "$15,000", "$22,000"))
	outDir := filepath.Join(dir, "reports")

	stdout, _, err := runCLI(t, stubClient{}, "analyze", a, b, "-o", outDir)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !strings.Contains(stdout, "Report written to") {
		t.Errorf("stdout = %q", stdout)
	}
	for _, name := range []string{"first.md", "second.md"} {
		data, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if !strings.Contains(string(data), "LEGAL DOCUMENT ANALYSIS REPORT") {
			t.Errorf("%s missing report header", name)
		}
	}
}

func TestAnalyzeCommand_JSONFormat(t *testing.T) {
	stdout, _, err := runCLI(t, stubClient{}, "analyze", "--text", consultingAgreement, "--format", "json")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	var snap pipeline.RunSnapshot
	if err := json.Unmarshal([]byte(stdout), &snap); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, stdout)
	}
	if snap.State != pipeline.StateSucceeded {
		t.Errorf("state = %s", snap.State)
	}
	if _, ok := snap.Results["parties"]; !ok {
		t.Error("snapshot missing parties results")
	}
}

func TestAnalyzeCommand_HTMLFormat(t *testing.T) {
	stdout, _, err := runCLI(t, stubClient{}, "analyze", "--text", consultingAgreement, "--format", "html")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	for _, want := range []string{"<!doctype html>", "<h2>LEGAL DOCUMENT ANALYSIS REPORT</h2>"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q", want)
		}
	}
}

func TestAnalyzeCommand_UnsupportedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeTempDoc(t, dir, "contract.xyz", consultingAgreement)

	_, _, err := runCLI(t, stubClient{}, "analyze", path)
	if err == nil {
		t.Fatal("expected error for unsupported extension")
	}
	if !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("err = %v", err)
	}
}

func TestAnalyzeCommand_FailedRunExitsNonZero(t *testing.T) {
	_, stderr, err := runCLI(t, failingClient{}, "analyze", "--text", consultingAgreement)
	if err == nil {
		t.Fatal("expected error for failed run")
	}
	if !strings.Contains(err.Error(), "1 of 1 analyses failed") {
		t.Errorf("err = %v", err)
	}
	if !strings.Contains(stderr, "failed at parties") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestAnalyzeCommand_TextWithFilesRejected(t *testing.T) {
	_, _, err := runCLI(t, stubClient{}, "analyze", "some.txt", "--text", "hello")
	if err == nil || !strings.Contains(err.Error(), "cannot be combined") {
		t.Errorf("err = %v", err)
	}
}

func TestCompareCommand(t *testing.T) {
	dir := t.TempDir()
	a := writeTempDoc(t, dir, "lease_v1.txt", consultingAgreement)
	b := writeTempDoc(t, dir, "lease_v2.txt", strings.ReplaceAll(consultingAgreement, "$15,000", "$22,000"))

	stdout, _, err := runCLI(t, stubClient{}, "compare", a, b)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	for _, want := range []string{
		"CONTRACT COMPARISON REPORT",
		"lease_v1.txt",
		"lease_v2.txt",
		"| **Est. Risk** | **3/10 (Low)** | **5/10 (Medium)** |",
		"Document A appears more favorable.",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q", want)
		}
	}
}

func TestCompareCommand_OutputFile(t *testing.T) {
	dir := t.TempDir()
	a := writeTempDoc(t, dir, "a.txt", consultingAgreement)
	b := writeTempDoc(t, dir, "b.txt", consultingAgreement+"\nAmended.")
	outPath := filepath.Join(dir, "comparison.md")

	stdout, _, err := runCLI(t, stubClient{}, "compare", a, b, "-o", outPath)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if !strings.Contains(stdout, "Report written to "+outPath) {
		t.Errorf("stdout = %q", stdout)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "CONTRACT COMPARISON REPORT") {
		t.Error("output file missing report header")
	}
}

func TestCompareCommand_RequiresTwoDocuments(t *testing.T) {
	_, _, err := runCLI(t, stubClient{}, "compare", "only-one.txt")
	if err == nil {
		t.Fatal("expected argument count error")
	}
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := runCLI(t, stubClient{}, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(stdout, "lexiscan "+version) {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestCollectInputs_Text(t *testing.T) {
	inputs, err := collectInputs(config.Config{}, "some contract text", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(inputs) != 1 || inputs[0].label != "text" {
		t.Fatalf("inputs = %+v", inputs)
	}
	if inputs[0].doc.Text != "some contract text" {
		t.Errorf("text = %q", inputs[0].doc.Text)
	}
}

func TestCollectInputs_Files(t *testing.T) {
	dir := t.TempDir()
	path := writeTempDoc(t, dir, "contract.md", "# Heading\n\nBody text of the agreement.")

	inputs, err := collectInputs(config.Config{}, "", []string{path})
	if err != nil {
		t.Fatal(err)
	}
	if len(inputs) != 1 || inputs[0].label != "contract.md" {
		t.Fatalf("inputs = %+v", inputs)
	}
	if !strings.Contains(inputs[0].doc.Text, "Body text of the agreement.") {
		t.Errorf("text = %q", inputs[0].doc.Text)
	}
}

func TestCollectInputs_MissingFile(t *testing.T) {
	_, err := collectInputs(config.Config{}, "", []string{"/does/not/exist.txt"})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateFormat(t *testing.T) {
	for _, format := range []string{"md", "markdown", "html", "json"} {
		if err := validateFormat(format); err != nil {
			t.Errorf("validateFormat(%q) = %v", format, err)
		}
	}
	if err := validateFormat("pdf"); err == nil {
		t.Error("expected error for pdf format")
	}
}

func TestFormatExt(t *testing.T) {
	cases := map[string]string{"md": "md", "markdown": "md", "html": "html", "json": "json"}
	for format, want := range cases {
		if got := formatExt(format); got != want {
			t.Errorf("formatExt(%q) = %q, want %q", format, got, want)
		}
	}
}
