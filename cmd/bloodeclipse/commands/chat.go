package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Shadow-Monarch-1/BloodEclipse-AI/pkg/bloodeclipse/channels"
	"github.com/Shadow-Monarch-1/BloodEclipse-AI/pkg/bloodeclipse/channels/console"
	"github.com/Shadow-Monarch-1/BloodEclipse-AI/pkg/bloodeclipse/copilot"
)

// newChatCmd creates the `bloodeclipse chat` command that talks to the bot
// from the terminal, without Discord.
func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [line]",
		Short: "Talk to the bot from the terminal",
		Long: `Run the bot against the terminal instead of Discord. Lines are handled
exactly like guild messages ("!ai ...") or slash commands ("/ask ...").
Only the completion, search and image credentials are needed.

With an argument the line is answered once and the command exits.

Examples:
  bloodeclipse chat
  bloodeclipse chat "!ai best sword build"
  bloodeclipse chat "/imagine prompt:a crimson moon over the pass"`,
		Args: cobra.MaximumNArgs(1),
		RunE: runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newChatLogger(cmd)

	copilot.ResolveSecrets(cfg, logger)
	if err := cfg.ValidateProviders(); err != nil {
		var missing *copilot.MissingConfigError
		if errors.As(err, &missing) {
			return fmt.Errorf("%w (run 'bloodeclipse setup' or set them in .env)", err)
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers, err := copilot.BuildProviders(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("building providers: %w", err)
	}

	consoleCfg := console.DefaultConfig()
	if home, err := os.UserHomeDir(); err == nil {
		consoleCfg.HistoryFile = filepath.Join(home, ".bloodeclipse_history")
	}
	term := console.New(consoleCfg, logger)
	term.SetCommands(copilot.CommandSpecs())

	if len(args) == 1 {
		return chatOnce(ctx, cmd, cfg, providers, term, args[0], logger)
	}

	mgr := channels.NewManager(logger)
	if err := mgr.Register(term); err != nil {
		return err
	}
	assistant := copilot.New(cfg, providers, mgr, logger)
	if err := mgr.Start(ctx); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s console. Type \"!ai <question>\", /help, or exit.\n\n", cfg.Name)
	go assistant.Run(ctx)

	select {
	case <-term.Done():
	case <-ctx.Done():
	}

	stop()
	assistant.Wait()
	mgr.Stop()
	return nil
}

// chatOnce answers a single line and prints the reply card.
func chatOnce(ctx context.Context, cmd *cobra.Command, cfg *copilot.Config,
	providers *copilot.Providers, term *console.Console, line string, logger *slog.Logger) error {

	route, ok := copilot.ParseRoute(term.Parse(strings.TrimSpace(line)), cfg.Router)
	if !ok {
		return fmt.Errorf("nothing to answer: start the line with %s, %s, %s or a /command",
			cfg.Router.AskPrefix, cfg.Router.ImaginePrefix, cfg.Router.RoastPrefix)
	}

	if t := cfg.Router.RequestTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	assistant := copilot.New(cfg, providers, nil, logger)
	out := assistant.Process(ctx, route)

	reply := copilot.NewFormatter(cfg.Embed).Embed(out)
	fmt.Fprintln(cmd.OutOrStdout(), console.Render(reply))
	return nil
}

// newChatLogger keeps the terminal quiet: warnings on stderr, debug with -v.
func newChatLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
