// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
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
	"github.com/MissioAI/browserpilot/internal/transcript"
)

// runCmd performs a single task from the command line without the HTTP
// surface, printing the final answer to stdout.
var runCmd = &cobra.Command{
	Use:   "run [task]",
	Short: "Run one browser task to completion.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTask(cmd.Context(), strings.Join(args, " "))
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runTask(parent context.Context, task string) error {
	cfg := appConfig
	logger := observability.GetLogger()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := transcript.NewMemoryStore()
	registry := browser.NewRegistry(logger, browser.NewChromeLauncher(cfg.Browser, logger))
	defer registry.CloseAll(context.Background())

	exec := executor.NewExecutor(logger, registry, cfg.Agent)
	eval := evaluator.NewEvaluator(logger)
	model := llmclient.NewClient(cfg.LLM, logger)

	orch := orchestrator.NewOrchestrator(logger, model, exec, store, cfg.Agent,
		orchestrator.WithEvaluator(eval))

	tools := []schemas.ToolSpec{
		llmclient.ComputerToolSpec(cfg.Browser, cfg.Agent.ScaleFactor),
	}
	pipe := pipeline.NewPipeline(logger, store, orch, tools,
		pipeline.WithSessionCloser(registry))

	result, err := pipe.Run(ctx, pipeline.Request{Task: task})
	if err != nil {
		return err
	}

	logger.Info("Task complete",
		zap.String("session_id", result.SessionID),
		zap.String("reason", string(result.Reason)),
		zap.Int("steps", result.StepCount))
	fmt.Println(result.Response)
	return nil
}
