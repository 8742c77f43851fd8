package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/vault-inject/internal/config"
	"github.com/systmms/vault-inject/internal/logging"
)

// NewRootCommand builds the vault-inject command tree. The root itself runs
// the same action as "run", so "vault-inject -s ... -- cmd" works without a
// subcommand.
func NewRootCommand(cfg *config.Config, version string) *cobra.Command {
	// Global flags
	var (
		configFile     string
		noColor        bool
		debug          bool
		nonInteractive bool
	)

	rootCmd := NewRunCommand(cfg)
	rootCmd.Use = "vault-inject [flags] [-- command [args...]]"
	rootCmd.Short = "Inject Vault secrets into a command's environment"
	rootCmd.Version = version
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		// Initialize logger with parsed flags
		cfg.Logger = logging.NewWithWriter(cmd.ErrOrStderr(), debug, noColor)
		cfg.Path = configFile
		cfg.PathExplicit = cmd.Flags().Changed("config")
		cfg.NonInteractive = nonInteractive
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultPath, "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "Never prompt for credentials")

	rootCmd.AddCommand(
		NewRunCommand(cfg),
		NewGetCommand(cfg),
		NewMountsCommand(cfg),
		NewCacheCommand(cfg),
		NewCompletionCommand(),
	)

	return rootCmd
}

// VersionString formats build metadata for --version.
func VersionString(version, commit, date string) string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}
