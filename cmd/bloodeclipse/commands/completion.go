package commands

import (
	"github.com/spf13/cobra"
)

// newCompletionCmd creates the `bloodeclipse completion` command.
func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate a shell completion script for bloodeclipse.

Bash:
  $ source <(bloodeclipse completion bash)

Zsh:
  $ bloodeclipse completion zsh > "${fpath[1]}/_bloodeclipse"

Fish:
  $ bloodeclipse completion fish > ~/.config/fish/completions/bloodeclipse.fish

PowerShell:
  PS> bloodeclipse completion powershell | Out-String | Invoke-Expression`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, out := cmd.Root(), cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return root.GenBashCompletionV2(out, true)
			case "zsh":
				return root.GenZshCompletion(out)
			case "fish":
				return root.GenFishCompletion(out, true)
			default:
				return root.GenPowerShellCompletionWithDesc(out)
			}
		},
	}
}
