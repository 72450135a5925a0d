// Package main provides the CLI entry point for the Cratos orchestrator:
// the bounded plan-act loop, scheduler, and gateway described by
// internal/app.
//
// # Basic Usage
//
// Start the server:
//
//	orchestrator serve --config orchestrator.yaml
//
// Replay a past execution's recorded events:
//
//	orchestrator replay --config orchestrator.yaml <execution-id>
//
// # Environment Variables
//
//   - ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY: LLM provider credentials,
//     overlaid onto the config file's llm section if set.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/cratos-ai/orchestrator/internal/app"
)

const shutdownGrace = 10 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "orchestrator",
		Short:        "Cratos orchestrator: plan-act loop, scheduler, and gateway",
		SilenceUsage: true,
	}
	root.AddCommand(buildServeCmd(), buildMigrateCmd(), buildReplayCmd())
	return root
}

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestrator: Scheduler, Gateway, and every backing component",
		RunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
			}
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "orchestrator.yaml", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyEnvOverrides(&cfg)

	a, err := app.Build(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("start app: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", a.WSServer)
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpSrv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("gateway http server failed", "error", err)
		}
	}()

	slog.Info("orchestrator started",
		"host", cfg.Server.Host, "port", cfg.Server.Port,
		"llm_provider", cfg.LLM.DefaultProvider,
		"scheduler_enabled", cfg.Scheduler.Enabled,
	)

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownHTTPCtx, shutdownHTTPCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownHTTPCancel()
	if err := httpSrv.Shutdown(shutdownHTTPCtx); err != nil {
		slog.Warn("gateway http server shutdown error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	return a.Close(shutdownCtx)
}

func applyEnvOverrides(cfg *app.Config) {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.LLM.Anthropic.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.OpenAI.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.LLM.Gemini.APIKey = v
	}
}

func buildMigrateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Open every configured storage backend, applying its schema migrations",
		Long: `The Event Store, Session Store, and Graph Memory backends each apply
their own schema on open; this command exercises that path against the
configured DSNs without starting the server, so migrations can run as a
separate deploy step.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			applyEnvOverrides(&cfg)
			a, err := app.Build(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer a.Close(context.Background())
			slog.Info("migrations applied")
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "orchestrator.yaml", "Path to YAML configuration file")
	return cmd
}

func buildReplayCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "replay <execution-id>",
		Short: "Print the recorded events for a past execution in sequence order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			applyEnvOverrides(&cfg)
			a, err := app.Build(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer a.Close(context.Background())

			events, err := a.Events.GetExecutionEvents(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get execution events: %w", err)
			}
			for _, ev := range events {
				payload, _ := json.Marshal(ev.Payload)
				fmt.Printf("%d\t%s\t%s\n", ev.SequenceNum, ev.Type, payload)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "orchestrator.yaml", "Path to YAML configuration file")
	return cmd
}
