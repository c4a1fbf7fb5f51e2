package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"lexiscan/internal/config"
	"lexiscan/internal/document"
	"lexiscan/internal/pipeline"
)

var analyzeFlags struct {
	text     string
	output   string
	format   string
	parallel int
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [files...]",
	Short: "Analyze legal documents and render reports",
	Long: `Analyze runs the staged pipeline over one or more documents and
renders a report per document.

Usage:
  lexiscan analyze contract.pdf                 # One document to stdout
  lexiscan analyze a.pdf b.docx -o reports/     # Batch into a directory
  lexiscan analyze - < contract.txt             # Read from stdin
  lexiscan analyze --text "..."                 # Analyze literal text

The model backend and credentials come from the environment (LLM_BACKEND,
GEMINI_API_KEY or ANTHROPIC_API_KEY).`,
	RunE: runAnalyzeCmd,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeFlags.text, "text", "", "Analyze literal text instead of files")
	f.StringVarP(&analyzeFlags.output, "output", "o", "", "Output file, or directory when analyzing multiple documents (default: stdout)")
	f.StringVar(&analyzeFlags.format, "format", "md", "Report format: md, html, or json")
	f.IntVar(&analyzeFlags.parallel, "parallel", 2, "Concurrent analyses when batching files")
}

func runAnalyzeCmd(cmd *cobra.Command, args []string) error {
	if err := validateFormat(analyzeFlags.format); err != nil {
		return err
	}
	if analyzeFlags.parallel < 1 {
		analyzeFlags.parallel = 1
	}

	cfg := config.Load()
	inputs, err := collectInputs(cfg, analyzeFlags.text, args)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("nothing to analyze: pass files, \"-\" for stdin, or --text")
	}

	env, err := newPipelineEnv(cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	// Runs execute independently; failures are collected per input so one
	// bad document does not sink the batch.
	outcomes := make([]runOutcome, len(inputs))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(analyzeFlags.parallel)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			run := pipeline.NewRun(pipeline.ModeAnalyze, []string{in.label}, []document.Document{in.doc}, env.lib.Analysis)
			env.coord.Analyze(ctx, run)
			outcomes[i] = newRunOutcome(in.label, run)
			return nil
		})
	}
	g.Wait()

	batch := len(outcomes) > 1
	var failed int
	for _, out := range outcomes {
		if out.err != nil {
			failed++
			fmt.Fprintln(cmd.ErrOrStderr(), "error:", out.err)
			continue
		}
		rendered, err := renderReport(out, analyzeFlags.format)
		if err != nil {
			return err
		}
		if err := writeReport(cmd, analyzeFlags.output, out.label, rendered, analyzeFlags.format, batch); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d analyses failed", failed, len(outcomes))
	}
	return nil
}
