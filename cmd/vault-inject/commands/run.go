package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/systmms/vault-inject/internal/address"
	"github.com/systmms/vault-inject/internal/config"
	vierrors "github.com/systmms/vault-inject/internal/errors"
	"github.com/systmms/vault-inject/internal/execenv"
	"github.com/systmms/vault-inject/internal/filter"
	"github.com/systmms/vault-inject/internal/mapping"
	"github.com/systmms/vault-inject/internal/pipeline"
	"github.com/systmms/vault-inject/internal/secure"
)

const runLong = `Resolve secret mappings against Vault and run a command with the values
injected as environment variables. Secrets are held in memory only and are
never written to disk.

Each --secret takes the form

  ENV_VAR=path/to/secret/key [| filter ...]

where the key and the variable name may share {placeholders}: one lookup can
then set many variables. Filters are shell commands that receive the value on
stdin and print the replacement on stdout.

If any mapping fails to resolve, the command is not started.`

const runExamples = `  # Inject one field
  vault-inject -s DB_PASSWORD=secret/app/db/password -- ./server

  # Inject every field of a secret, prefixed
  vault-inject -s 'DB_{field}=secret/app/db/{field}' -c 'env | grep ^DB_'

  # Decode a base64 value on the way in
  vault-inject -s 'TLS_KEY=kv2://app/tls/key | base64 -d' -- ./server`

// NewRunCommand creates the command that resolves secrets and runs a child
// process. The root command runs it by default.
func NewRunCommand(cfg *config.Config) *cobra.Command {
	var (
		flags     connectionFlags
		secrets   []string
		command   string
		printVars bool
	)

	cmd := &cobra.Command{
		Use:     "run [flags] [-- command [args...]]",
		Short:   "Run a command with secrets injected as environment variables",
		Long:    runLong,
		Example: runExamples,
		Args:    cobra.ArbitraryArgs,
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

			// Everything the user typed is checked before any network traffic
			specs := append(append([]string(nil), settings.Secrets...), secrets...)
			if len(specs) == 0 {
				return vierrors.UserError{
					Message:    "No secret mappings given",
					Suggestion: "Add --secret ENV_VAR=path/to/secret/key, or a secrets: list in " + config.DefaultPath,
				}
			}
			mappings, err := mapping.ParseAll(specs)
			if err != nil {
				return friendlyError(err)
			}

			options := execenv.ExecOptions{
				Command:   args,
				Shell:     command,
				PrintVars: printVars,
				Stdin:     cmd.InOrStdin(),
				Stdout:    cmd.OutOrStdout(),
				Stderr:    cmd.ErrOrStderr(),
			}
			if err := execenv.ValidateCommand(options.Argv()); err != nil {
				return err
			}

			sess, err := newSessionWithSettings(cfg, settings, flags.metricsFile)
			if err != nil {
				return err
			}
			defer sess.flushMetrics()

			client, err := sess.login(ctx)
			if err != nil {
				return err
			}
			store, err := sess.secretStore(ctx, client, needsDiscovery(mappings))
			if err != nil {
				return err
			}

			p := pipeline.New(store, filter.New(nil, sess.metrics, cfg.Logger),
				pipeline.WithMetrics(sess.metrics),
				pipeline.WithLogger(cfg.Logger),
			)
			resolved, err := p.ResolveEnv(ctx, mappings)
			if err != nil {
				return friendlyError(err)
			}
			cfg.Logger.Debug("Resolved %d environment variables from %d mappings", len(resolved), len(mappings))

			env, err := secure.EnvFromMap(resolved)
			if err != nil {
				return vierrors.UserError{
					Message:    "Failed to secure resolved values",
					Details:    err.Error(),
					Suggestion: "Try running with --debug for more information",
					Err:        err,
				}
			}
			defer env.Destroy()
			clear(resolved)

			options.Environment = env
			sess.flushMetrics()

			return execenv.New(cfg.Logger).Exec(ctx, options)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringArrayVarP(&secrets, "secret", "s", nil, "Secret mapping ENV_VAR=path/to/secret/key [| filter ...] (repeatable)")
	cmd.Flags().StringVarP(&command, "command", "c", "", "Command line to run through sh -c instead of the arguments after --")
	cmd.Flags().BoolVar(&printVars, "print", false, "Print injected variables (values masked) before running")

	return cmd
}

// needsDiscovery reports whether any mapping is routed through the mount
// table rather than a kv1://, kv2:// or cubbyhole:// scheme.
func needsDiscovery(mappings []*mapping.SecretMapping) bool {
	for _, m := range mappings {
		if m.Scheme == address.SchemeNone {
			return true
		}
	}
	return false
}
