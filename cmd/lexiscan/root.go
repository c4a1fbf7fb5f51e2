// lexiscan analyzes legal documents with a staged model pipeline.
//
// Usage:
//
//	lexiscan analyze <files...>        # analysis reports, one per document
//	lexiscan compare <a> <b>           # side-by-side comparison report
//	lexiscan serve                     # HTTP API
//
// Model backend, credentials, and limits come from the environment; see
// internal/config for the variable list.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	verbose bool
}

var rootCmd = &cobra.Command{
	Use:   "lexiscan",
	Short: "Staged LLM analysis of legal documents",
	Long: "Lexiscan extracts text from legal documents (PDF, DOCX, HTML,\n" +
		"Markdown, plain text) and runs a staged model pipeline over it:\n" +
		"party extraction, financial terms, risk assessment, and a\n" +
		"deterministic Markdown report.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the lexiscan version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "lexiscan "+version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&rootFlags.verbose, "verbose", "v", false, "Log pipeline progress to stderr")
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.Version = version
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
