package commands

import (
	"github.com/spf13/cobra"
)

// NewCompletionCommand creates the completion command for generating shell completions.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for vault-inject.

To load completions:

Bash:
  $ source <(vault-inject completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ vault-inject completion bash > /etc/bash_completion.d/vault-inject
  # macOS:
  $ vault-inject completion bash > $(brew --prefix)/etc/bash_completion.d/vault-inject

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ vault-inject completion zsh > "${fpath[1]}/_vault-inject"

Fish:
  $ vault-inject completion fish | source

  # To load completions for each session, execute once:
  $ vault-inject completion fish > ~/.config/fish/completions/vault-inject.fish

PowerShell:
  PS> vault-inject completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}

	return cmd
}
