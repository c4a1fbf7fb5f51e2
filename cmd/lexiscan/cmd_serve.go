package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"lexiscan/internal/api"
	"lexiscan/internal/config"
	"lexiscan/internal/pipeline"
	"lexiscan/internal/prompt"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the lexiscan HTTP API",
	Long: `Serve starts the HTTP API: async document submission, run polling,
report retrieval, and invocation stats. Runs are processed by a bounded
worker pool and kept in memory until their TTL expires.

Configuration comes from the environment; see internal/config for the
variable list. The server shuts down gracefully on SIGINT/SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServeCmd,
}

func runServeCmd(cmd *cobra.Command, args []string) error {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	client, stats, err := newModelClient(cfg, log)
	if err != nil {
		return err
	}

	lib, err := prompt.Load()
	if err != nil {
		client.Close()
		return err
	}

	orch := pipeline.NewOrchestrator(cfg, client, lib, log)
	orch.Start(cmd.Context())

	srv := api.NewServer(orch, stats, client.Model(), log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown once the command context is cancelled (SIGINT or
	// SIGTERM via the root command).
	go func() {
		<-cmd.Context().Done()
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)

		client.Close()
	}()

	log.Info("starting lexiscan", "port", cfg.Port, "backend", cfg.Backend, "model", client.Model())
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
