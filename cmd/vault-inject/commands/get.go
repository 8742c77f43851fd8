package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/vault-inject/internal/address"
	"github.com/systmms/vault-inject/internal/config"
	"github.com/systmms/vault-inject/internal/filter"
)

func NewGetCommand(cfg *config.Config) *cobra.Command {
	var (
		flags      connectionFlags
		filters    []string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "get <address>",
		Short: "Get a single secret value",
		Long: `Retrieve and print a single secret value.

The address is path/to/secret/key, either routed through the mounts Vault
reports or prefixed with kv1://, kv2:// or cubbyhole:// to use that engine's
default mount. Only the raw value is printed, so the output is suitable for
scripting.

Examples:
  # Get a value from a discovered mount
  vault-inject get secret/app/db/password

  # Get a value from the default KV v2 mount
  vault-inject get kv2://app/db/password

  # Get value with its location in JSON format
  vault-inject get kv2://app/db/password --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			addr, err := address.Parse(args[0])
			if err != nil {
				return friendlyError(err)
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
			store, err := sess.secretStore(ctx, client, addr.Scheme == address.SchemeNone)
			if err != nil {
				return err
			}

			secret, err := store.Lookup(ctx, addr.Scheme, addr.Path)
			if err != nil {
				return friendlyError(err)
			}
			value, err := secret.Get(addr.Key)
			if err != nil {
				return friendlyError(err)
			}
			if len(filters) > 0 {
				value, err = filter.New(nil, sess.metrics, cfg.Logger).Apply(ctx, value, filters)
				if err != nil {
					return friendlyError(err)
				}
			}

			if jsonOutput {
				output := map[string]interface{}{
					"address": addr.String(),
					"mount":   secret.Location.Mount,
					"path":    secret.Location.Path,
					"storage": secret.Location.Type.String(),
					"key":     addr.Key,
					"value":   value,
				}
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(output)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), value)
			return err
		},
	}

	flags.register(cmd)
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "Shell command to pipe the value through (repeatable, applied in order)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output value with its location in JSON format")

	return cmd
}
