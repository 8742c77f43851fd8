package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/systmms/vault-inject/internal/auth"
	"github.com/systmms/vault-inject/internal/config"
)

func NewCacheCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the cached Vault token",
		Long: `vault-inject saves the token from its last login so later runs can skip
logging in while the token is still valid. Use these commands to check or
remove it.`,
	}

	cmd.AddCommand(newCacheStatusCommand(cfg), newCacheClearCommand(cfg))
	return cmd
}

func newCacheStatusCommand(cfg *config.Config) *cobra.Command {
	var flags connectionFlags

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show where the token is cached and whether it is still valid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			if err := cfg.Load(); err != nil {
				return err
			}
			settings, err := flags.settings(cmd, cfg)
			if err != nil {
				return err
			}
			store, err := cacheStore(settings)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Location: %s\n", store.Location())

			token := store.Load().LastToken
			if token == "" {
				_, _ = fmt.Fprintln(out, "Token:    none")
				return nil
			}

			if settings.VaultURL == "" {
				_, _ = fmt.Fprintln(out, "Token:    present (not checked, no Vault address configured)")
				return nil
			}
			sess, err := newSessionWithSettings(cfg, settings, "")
			if err != nil {
				return err
			}
			if auth.IsTokenValid(ctx, sess.client, token) {
				_, _ = fmt.Fprintf(out, "Token:    valid for %s\n", settings.VaultURL)
			} else {
				_, _ = fmt.Fprintf(out, "Token:    expired or rejected by %s\n", settings.VaultURL)
			}
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func newCacheClearCommand(cfg *config.Config) *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the cached token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}
			settings, err := cfg.Settings(os.LookupEnv)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("cache-backend") {
				settings.CacheBackend = backend
			}
			store, err := cacheStore(settings)
			if err != nil {
				return err
			}
			if err := store.Clear(); err != nil {
				return friendlyError(err)
			}
			cfg.Logger.Info("Cleared cached token at %s", store.Location())
			return nil
		},
	}

	cmd.Flags().StringVar(&backend, "cache-backend", config.DefaultBackend, "Token cache backend: file or keyring (env: VAULT_INJECT_CACHE_BACKEND)")
	return cmd
}
