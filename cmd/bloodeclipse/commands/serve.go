package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Shadow-Monarch-1/BloodEclipse-AI/pkg/bloodeclipse/channels"
	"github.com/Shadow-Monarch-1/BloodEclipse-AI/pkg/bloodeclipse/channels/discord"
	"github.com/Shadow-Monarch-1/BloodEclipse-AI/pkg/bloodeclipse/copilot"
	"github.com/Shadow-Monarch-1/BloodEclipse-AI/pkg/bloodeclipse/gateway"
	"github.com/Shadow-Monarch-1/BloodEclipse-AI/pkg/bloodeclipse/scheduler"
)

// shutdownGrace bounds the graceful shutdown.
const shutdownGrace = 10 * time.Second

// newServeCmd creates the `bloodeclipse serve` command that runs the bot.
func newServeCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to Discord and answer the guild",
		Long: `Start BloodEclipse-AI as a long-running service: connect to the Discord
gateway, register the slash commands on the configured guild and answer
"!ai" messages until interrupted.

Examples:
  bloodeclipse serve
  bloodeclipse serve --config ./config.yaml --verbose`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, version)
		},
	}
}

func runServe(cmd *cobra.Command, version string) error {
	// ── Load config ──
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)
	if path != "" {
		logger.Info("config loaded", "path", path)
	}

	// ── Resolve secrets and validate before touching Discord ──
	if names := copilot.ResolveSecrets(cfg, logger); len(names) > 0 {
		logger.Info("secrets loaded from OS keyring", "names", names)
	}
	if err := cfg.Validate(); err != nil {
		var missing *copilot.MissingConfigError
		if errors.As(err, &missing) {
			logger.Error("missing required configuration, run 'bloodeclipse setup' or set the variables",
				"missing", missing.Missing)
		}
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Providers ──
	providers, err := copilot.BuildProviders(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("building providers: %w", err)
	}

	// ── Channels ──
	mgr := channels.NewManager(logger)
	dc := discord.New(cfg.Discord, logger)
	dc.SetCommands(copilot.CommandSpecs())
	if err := mgr.Register(dc); err != nil {
		return err
	}

	assistant := copilot.New(cfg, providers, mgr, logger)

	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("failed to start channels: %w", err)
	}

	// ── Presence rotation ──
	sched := scheduler.New(logger)
	if cfg.Presence.Rotate != "" && len(cfg.Presence.Activities) > 1 {
		rotation := scheduler.NewActivityRotation(cfg.Presence.Activities, dc.SetActivity)
		if err := sched.Add(rotation.Job(cfg.Presence.Rotate)); err != nil {
			logger.Error("invalid presence rotation schedule", "schedule", cfg.Presence.Rotate, "error", err)
		}
	}
	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
	}

	// ── Health gateway ──
	var gw *gateway.Gateway
	if cfg.Gateway.Enabled {
		gw = gateway.New(cfg.Gateway, mgr, version, logger)
		if err := gw.Start(ctx); err != nil {
			logger.Error("failed to start health gateway", "error", err)
			gw = nil
		}
	}

	go assistant.Run(ctx)

	logger.Info("BloodEclipse-AI running. Press Ctrl+C to stop.",
		"version", version,
		"guild", cfg.Discord.GuildID,
		"completion", cfg.Completion.Provider,
		"model", cfg.Completion.Model,
		"search", cfg.Search.Provider,
		"image", cfg.Image.Provider,
	)

	// ── Wait for shutdown ──
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")
	shutdown(ctx, cancel, logger, sched, gw, mgr, assistant)
	return nil
}

// shutdown stops the scheduler and gateway, lets in-flight replies finish
// and disconnects the channels, all within shutdownGrace.
func shutdown(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger,
	sched *scheduler.Scheduler, gw *gateway.Gateway, mgr *channels.Manager, assistant *copilot.Assistant) {

	graceCtx, graceCancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer graceCancel()

	done := make(chan struct{})
	go func() {
		sched.Stop()
		if gw != nil {
			if err := gw.Stop(graceCtx); err != nil {
				logger.Warn("health gateway shutdown failed", "error", err)
			}
		}
		cancel()
		assistant.Wait()
		mgr.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-graceCtx.Done():
		logger.Warn("shutdown timed out, forcing exit", "grace", shutdownGrace)
	}
}
