package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nextlevelbuilder/goclaw-sched/internal/agentrt"
	"github.com/nextlevelbuilder/goclaw-sched/internal/config"
	"github.com/nextlevelbuilder/goclaw-sched/internal/orchestrator"
	"github.com/nextlevelbuilder/goclaw-sched/internal/telemetry"
)

// runStart loads config, opens the main agent session, and blocks running
// the orchestrator until an interrupt or terminate signal arrives.
func runStart() error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
		if err != nil {
			slog.Warn("telemetry init failed, continuing without tracing", "err", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	if agentrt.NewClientFunc == nil {
		return fmt.Errorf("no agent SDK client wired: agentrt.NewClientFunc is nil (this core only drives an externally supplied session, per the runtime contract)")
	}
	mainClient, err := agentrt.NewClientFunc(ctx, cfg.Paths.StateDir)
	if err != nil {
		return fmt.Errorf("open main agent session: %w", err)
	}

	orch, err := orchestrator.New(cfg, mainClient)
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}

	slog.Info("goclaw-sched starting", "state_dir", cfg.Paths.StateDir)
	return orch.Run(ctx)
}
