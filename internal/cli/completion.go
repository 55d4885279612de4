package cli

import (
	"github.com/spf13/cobra"
)

func newCompletionCmd(rootCmd *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion script",
		Long: `Generate shell completion script for nsrl-filter.

To load completions:

Bash:
  $ source <(nsrl-filter completion bash)
  # Or add to ~/.bashrc:
  $ echo 'source <(nsrl-filter completion bash)' >> ~/.bashrc

Zsh:
  $ source <(nsrl-filter completion zsh)

Fish:
  $ nsrl-filter completion fish > ~/.config/fish/completions/nsrl-filter.fish

PowerShell:
  PS> nsrl-filter completion powershell | Out-String | Invoke-Expression
`,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return rootCmd.GenBashCompletion(out)
			case "zsh":
				return rootCmd.GenZshCompletion(out)
			case "fish":
				return rootCmd.GenFishCompletion(out, true)
			default:
				return rootCmd.GenPowerShellCompletionWithDesc(out)
			}
		},
	}
}
