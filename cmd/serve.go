// File: cmd/serve.go
package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MissioAI/browserpilot/api/schemas"
	"github.com/MissioAI/browserpilot/internal/browser"
	"github.com/MissioAI/browserpilot/internal/evaluator"
	"github.com/MissioAI/browserpilot/internal/executor"
	"github.com/MissioAI/browserpilot/internal/llmclient"
	"github.com/MissioAI/browserpilot/internal/observability"
	"github.com/MissioAI/browserpilot/internal/orchestrator"
	"github.com/MissioAI/browserpilot/internal/pipeline"
	"github.com/MissioAI/browserpilot/internal/server"
	"github.com/MissioAI/browserpilot/internal/transcript"
)

// serveCmd starts the HTTP agent surface.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the browserpilot HTTP server.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	cfg := appConfig
	logger := observability.GetLogger()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Transcript backend.
	var store schemas.TranscriptStore
	switch cfg.Transcript.Backend {
	case "postgres":
		pgStore, pool, err := transcript.NewStore(ctx, logger, cfg.Transcript.DSN)
		if err != nil {
			return fmt.Errorf("failed to initialize transcript store: %w", err)
		}
		defer pool.Close()
		store = pgStore
	default:
		store = transcript.NewMemoryStore()
	}

	// Browser sessions and action execution.
	registry := browser.NewRegistry(logger, browser.NewChromeLauncher(cfg.Browser, logger))
	defer registry.CloseAll(context.Background())

	exec := executor.NewExecutor(logger, registry, cfg.Agent)
	eval := evaluator.NewEvaluator(logger)
	model := llmclient.NewClient(cfg.LLM, logger)
	hub := server.NewHub(logger)

	orch := orchestrator.NewOrchestrator(logger, model, exec, store, cfg.Agent,
		orchestrator.WithEvaluator(eval),
		orchestrator.WithStepHook(hub.Publish),
	)

	tools := []schemas.ToolSpec{
		llmclient.ComputerToolSpec(cfg.Browser, cfg.Agent.ScaleFactor),
	}
	pipe := pipeline.NewPipeline(logger, store, orch, tools,
		pipeline.WithSessionCloser(registry))

	srv := server.NewServer(logger, cfg.Server, pipe, exec, registry, hub)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Warn("Graceful shutdown incomplete", zap.Error(err))
	}
	return nil
}
