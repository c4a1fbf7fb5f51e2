package main

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"lexiscan/internal/config"
	"lexiscan/internal/document"
	"lexiscan/internal/pipeline"
)

var compareFlags struct {
	output string
	format string
}

var compareCmd = &cobra.Command{
	Use:   "compare <document-a> <document-b>",
	Short: "Compare two legal documents side by side",
	Long: `Compare extracts both documents and runs the comparison chain over
them, producing a side-by-side report: risk per document, estimated
value, key observations, and a recommendation.`,
	Args: cobra.ExactArgs(2),
	RunE: runCompareCmd,
}

func init() {
	f := compareCmd.Flags()
	f.StringVarP(&compareFlags.output, "output", "o", "", "Output file (default: stdout)")
	f.StringVar(&compareFlags.format, "format", "md", "Report format: md, html, or json")
}

func runCompareCmd(cmd *cobra.Command, args []string) error {
	if err := validateFormat(compareFlags.format); err != nil {
		return err
	}

	cfg := config.Load()
	docA, err := loadDocument(cfg, args[0])
	if err != nil {
		return err
	}
	docB, err := loadDocument(cfg, args[1])
	if err != nil {
		return err
	}

	env, err := newPipelineEnv(cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	filenameA := filepath.Base(args[0])
	filenameB := filepath.Base(args[1])
	run := pipeline.NewRun(pipeline.ModeCompare,
		[]string{filenameA, filenameB},
		[]document.Document{*docA, *docB},
		env.lib.ComparisonStages())
	env.coord.Compare(cmd.Context(), run)

	label := strings.TrimSuffix(filenameA, filepath.Ext(filenameA)) +
		"_vs_" + strings.TrimSuffix(filenameB, filepath.Ext(filenameB))
	out := newRunOutcome(label, run)
	if out.err != nil {
		return out.err
	}
	rendered, err := renderReport(out, compareFlags.format)
	if err != nil {
		return err
	}
	return writeReport(cmd, compareFlags.output, out.label, rendered, compareFlags.format, false)
}
