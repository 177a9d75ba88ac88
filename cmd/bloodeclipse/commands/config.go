package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Shadow-Monarch-1/BloodEclipse-AI/pkg/bloodeclipse/copilot"
)

// newConfigCmd creates the `bloodeclipse config` command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
		Long: `Inspect the configuration the bot would run with: config.yaml, .env,
environment variables and the OS keyring, merged.

Examples:
  bloodeclipse config check
  bloodeclipse config show
  bloodeclipse config forget OPENROUTER_API_KEY`,
	}

	cmd.AddCommand(
		newConfigCheckCmd(),
		newConfigShowCmd(),
		newConfigForgetCmd(),
	)

	return cmd
}

func newConfigCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report missing required variables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			copilot.ResolveSecrets(cfg, newChatLogger(cmd))

			out := cmd.OutOrStdout()
			if path != "" {
				fmt.Fprintf(out, "config file: %s\n", path)
			} else {
				fmt.Fprintln(out, "config file: none (defaults + environment)")
			}

			err = cfg.Validate()
			var missing *copilot.MissingConfigError
			if errors.As(err, &missing) {
				fmt.Fprintln(out, "missing:")
				for _, name := range missing.Missing {
					fmt.Fprintf(out, "  ✗ %s\n", name)
				}
				return err
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "ok: completion=%s search=%s image=%s\n",
				cfg.Completion.Provider, cfg.Search.Provider, cfg.Image.Provider)
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration with secrets masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			copilot.ResolveSecrets(cfg, newChatLogger(cmd))

			data, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "forget <NAME>",
		Short:     "Remove a secret from the OS keyring",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: copilot.SecretNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := copilot.DeleteKeyring(args[0]); err != nil {
				return fmt.Errorf("removing %s from the OS keyring: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s removed from the OS keyring\n", args[0])
			return nil
		},
	}
}
