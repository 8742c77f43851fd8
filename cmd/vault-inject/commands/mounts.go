package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/vault-inject/internal/config"
	"github.com/systmms/vault-inject/internal/secretstore"
)

func NewMountsCommand(cfg *config.Config) *cobra.Command {
	var flags connectionFlags

	cmd := &cobra.Command{
		Use:   "mounts",
		Short: "List the secret mounts vault-inject can read",
		Long: `List the kv (version 1 and 2) and cubbyhole mounts visible to your token.
Paths in secret mappings are routed to the longest matching mount.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			if err := cfg.Load(); err != nil {
				return err
			}
			sess, err := newSession(cmd, cfg, &flags)
			if err != nil {
				return err
			}
			defer sess.flushMetrics()

			client, err := sess.login(ctx)
			if err != nil {
				return err
			}
			table, err := secretstore.Discover(ctx, client)
			if err != nil {
				return friendlyError(err)
			}

			mounts := table.Mounts()
			if len(mounts) == 0 {
				cfg.Logger.Warn("No kv or cubbyhole mounts are visible to this token")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(w, "MOUNT\tTYPE\n")
			_, _ = fmt.Fprintf(w, "-----\t----\n")
			for _, m := range mounts {
				_, _ = fmt.Fprintf(w, "%s/\t%s\n", m.Prefix, m.Type)
			}
			return w.Flush()
		},
	}

	flags.register(cmd)
	return cmd
}
