package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"lexiscan/internal/config"
	"lexiscan/internal/document"
	"lexiscan/internal/llm"
	"lexiscan/internal/parser"
	"lexiscan/internal/pipeline"
	"lexiscan/internal/prompt"
	"lexiscan/internal/report"
)

// newModelClient builds the backend client; tests swap in a stub.
var newModelClient = func(cfg config.Config, log *slog.Logger) (llm.ModelClient, *llm.Stats, error) {
	return llm.New(cfg, log)
}

// pipelineEnv bundles everything a one-shot command needs to run the
// stage chain without the server-mode orchestrator.
type pipelineEnv struct {
	cfg    config.Config
	client llm.ModelClient
	stats  *llm.Stats
	lib    *prompt.Library
	coord  *pipeline.Coordinator
	log    *slog.Logger
}

func newPipelineEnv(cfg config.Config) (*pipelineEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := cliLogger()
	client, stats, err := newModelClient(cfg, log)
	if err != nil {
		return nil, err
	}
	lib, err := prompt.Load()
	if err != nil {
		client.Close()
		return nil, err
	}
	return &pipelineEnv{
		cfg:    cfg,
		client: client,
		stats:  stats,
		lib:    lib,
		coord:  pipeline.NewCoordinator(cfg, client, lib, log),
		log:    log,
	}, nil
}

func (e *pipelineEnv) Close() { e.client.Close() }

// cliLogger keeps stdout free for reports. Warnings and errors always
// show; --verbose adds pipeline progress.
func cliLogger() *slog.Logger {
	level := slog.LevelWarn
	if rootFlags.verbose {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// docInput is one parsed document queued for a command.
type docInput struct {
	label string
	doc   document.Document
}

// collectInputs resolves the analyze command's inputs: literal --text, "-"
// for stdin, or file paths. Extraction failures abort before any model call.
func collectInputs(cfg config.Config, text string, args []string) ([]docInput, error) {
	if text != "" {
		if len(args) > 0 {
			return nil, fmt.Errorf("--text cannot be combined with file arguments")
		}
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("--text is empty")
		}
		return []docInput{{label: "text", doc: document.Document{Text: text, Format: document.FormatText}}}, nil
	}

	var inputs []docInput
	for _, arg := range args {
		if arg == "-" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return nil, fmt.Errorf("read stdin: %w", err)
			}
			if strings.TrimSpace(string(data)) == "" {
				return nil, fmt.Errorf("stdin is empty")
			}
			inputs = append(inputs, docInput{label: "stdin", doc: document.Document{Text: string(data), Format: document.FormatText}})
			continue
		}
		doc, err := loadDocument(cfg, arg)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, docInput{label: filepath.Base(arg), doc: *doc})
	}
	return inputs, nil
}

func loadDocument(cfg config.Config, path string) (*document.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := parser.ExtractFile(filepath.Base(path), data, parser.Options{PDFFallbackPdftotext: cfg.PDFFallbackPdftotext})
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}
	return doc, nil
}

// runOutcome is the terminal result of one run, error folded in so batch
// members fail independently.
type runOutcome struct {
	label  string
	snap   pipeline.RunSnapshot
	report string
	err    error
}

func newRunOutcome(label string, run *pipeline.Run) runOutcome {
	snap := run.Snapshot()
	out := runOutcome{label: label, snap: snap}
	switch snap.State {
	case pipeline.StateSucceeded:
		out.report, _ = run.Report()
	case pipeline.StateCancelled:
		out.err = fmt.Errorf("%s: run cancelled", label)
	default:
		out.err = fmt.Errorf("%s: failed at %s: %s", label, snap.FailedStage, snap.Error)
	}
	return out
}

func validateFormat(format string) error {
	switch format {
	case "md", "markdown", "html", "json":
		return nil
	}
	return fmt.Errorf("unknown format %q (expected md, html, or json)", format)
}

func formatExt(format string) string {
	switch format {
	case "html":
		return "html"
	case "json":
		return "json"
	default:
		return "md"
	}
}

// renderReport converts a finished run into the requested output form.
// json emits the run snapshot with the per-stage results; md and html
// emit the rendered report.
func renderReport(out runOutcome, format string) (string, error) {
	switch format {
	case "md", "markdown":
		return out.report, nil
	case "html":
		return report.Page(reportTitle(out.snap), out.report)
	case "json":
		data, err := json.MarshalIndent(out.snap, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal run: %w", err)
		}
		return string(data) + "\n", nil
	}
	return "", fmt.Errorf("unknown format %q", format)
}

func reportTitle(snap pipeline.RunSnapshot) string {
	if snap.Mode == pipeline.ModeCompare && len(snap.Filenames) == 2 {
		return fmt.Sprintf("Comparison: %s vs %s", snap.Filenames[0], snap.Filenames[1])
	}
	if len(snap.Filenames) > 0 {
		return "Analysis: " + snap.Filenames[0]
	}
	return "Analysis"
}

// writeReport emits one rendered report to stdout, a file, or a directory.
// Batch runs always write into a directory named per input.
func writeReport(cmd *cobra.Command, output, label, content, format string, batch bool) error {
	if output == "" {
		fmt.Fprint(cmd.OutOrStdout(), content)
		if !strings.HasSuffix(content, "\n") {
			fmt.Fprintln(cmd.OutOrStdout())
		}
		return nil
	}

	path := output
	if batch || isDir(output) {
		if err := os.MkdirAll(output, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
		base := strings.TrimSuffix(label, filepath.Ext(label))
		path = filepath.Join(output, base+"."+formatExt(format))
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", path)
	return nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
