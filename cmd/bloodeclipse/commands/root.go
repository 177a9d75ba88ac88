// Package commands implements the BloodEclipse-AI CLI commands using cobra.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Shadow-Monarch-1/BloodEclipse-AI/pkg/bloodeclipse/copilot"
)

// NewRootCmd creates the root command with every subcommand registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bloodeclipse",
		Short: "BloodEclipse-AI - Where Winds Meet guild bot",
		Long: `BloodEclipse-AI is the Discord bot of the BloodEclipse guild.
It answers "!ai" questions and slash commands, searching the web when a
question needs fresh facts, and generates images and roasts on demand.

Examples:
  bloodeclipse serve
  bloodeclipse chat "!ai best sword build"
  bloodeclipse setup
  bloodeclipse config check`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCmd(version),
		newChatCmd(),
		newSetupCmd(),
		newConfigCmd(),
		newHealthCmd(),
		newCompletionCmd(),
	)

	// Global flags.
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logs")

	return rootCmd
}

// loadConfig loads the configuration from --config or a discovered file,
// then fills secrets still missing from the OS keyring.
func loadConfig(cmd *cobra.Command) (*copilot.Config, string, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path == "" {
		path = copilot.FindConfigFile()
	}

	cfg, err := copilot.LoadConfig(path)
	if err != nil {
		if path != "" {
			return nil, path, fmt.Errorf("loading config from %s: %w", path, err)
		}
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

// newLogger builds the process logger from the logging config and --verbose.
func newLogger(cmd *cobra.Command, cfg *copilot.Config) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")

	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
