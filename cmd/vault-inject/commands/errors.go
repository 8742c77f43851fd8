package commands

import (
	"errors"

	"github.com/systmms/vault-inject/internal/address"
	"github.com/systmms/vault-inject/internal/auth"
	vierrors "github.com/systmms/vault-inject/internal/errors"
	"github.com/systmms/vault-inject/internal/filter"
	"github.com/systmms/vault-inject/internal/mapping"
	"github.com/systmms/vault-inject/internal/pipeline"
	"github.com/systmms/vault-inject/internal/secretstore"
	"github.com/systmms/vault-inject/internal/template"
	"github.com/systmms/vault-inject/internal/vault"
)

const mappingSyntax = "Write mappings as ENV_VAR=path/to/secret/key [| filter ...], e.g. DB_{field}=secret/app/db/{field}"

// suggestions maps failure classes to a hint for the user. Order matters:
// the first match wins.
var suggestions = []struct {
	err        error
	message    string
	suggestion string
}{
	{mapping.ErrMissingEquals, "Invalid secret mapping", mappingSyntax},
	{mapping.ErrMissingVariable, "Invalid secret mapping", mappingSyntax},
	{mapping.ErrMissingPath, "Invalid secret mapping", mappingSyntax},
	{mapping.ErrEmptyFilter, "Invalid secret mapping", "Remove the trailing '|' or add a filter command after it"},
	{mapping.ErrUnboundParameter, "Invalid secret mapping", "Every {placeholder} in the variable name must also appear in the key"},
	{template.ErrDuplicateParameter, "Invalid secret mapping", "Use each {placeholder} name only once per pattern"},
	{address.ErrTrailingSlash, "Invalid secret address", "Remove the trailing '/'; the last segment is the key"},
	{address.ErrUnknownScheme, "Invalid secret address", "Use kv1://, kv2://, cubbyhole:// or a plain mount path"},
	{address.ErrMissingKey, "Invalid secret address", "Give the address as path/to/secret/key"},
	{auth.ErrUnknownMethod, "Unsupported authentication type", "Use --auth-type ldap, userpass or token"},
	{auth.ErrNonInteractive, "Missing credentials", "Pass --username/--password (or --token), or set VAULT_INJECT_USERNAME, VAULT_INJECT_PASSWORD, VAULT_INJECT_TOKEN"},
	{auth.ErrUnauthorized, "Vault rejected the login", "Check your credentials and --auth-path for the login method"},
	{auth.ErrMalformedResponse, "Unexpected login response from Vault", "Check that --auth-path points at an ldap or userpass auth mount"},
	{vault.ErrTransport, "Could not reach Vault", "Check --vault-url / VAULT_ADDR and your network connection"},
	{secretstore.ErrMalformedResponse, "Unexpected response from Vault", "Check that --vault-url points at a Vault server and your token may read sys/internal/ui/mounts"},
	{secretstore.ErrUnsupported, "Secret path is not on a supported mount", "Run 'vault-inject mounts' to list kv and cubbyhole mounts"},
	{secretstore.ErrKeyNotFound, "Secret key not found", "Check the key name; 'vault kv get' lists the fields of a secret"},
	{secretstore.ErrNotFound, "Secret not found", "Check the secret path and that your token's policy allows reading it"},
	{secretstore.ErrNonStringValue, "Secret value is not a string", "Only string fields can be injected; select string fields with the key pattern"},
	{filter.ErrFilterFailed, "Filter command failed", "Run the filter by hand to check it prints the transformed value"},
	{pipeline.ErrInvalidVariable, "Secret key is not a valid variable name", "Map keys containing '=' to a fixed name, e.g. NAME=path/to/secret/key"},
	{pipeline.ErrDuplicateVariable, "Two mappings produce the same variable", "Give each mapping a distinct variable name pattern"},
}

// friendlyError wraps known failures in a UserError with a suggestion.
// Errors that already carry user context pass through unchanged.
func friendlyError(err error) error {
	if err == nil {
		return nil
	}

	var (
		userErr   vierrors.UserError
		configErr vierrors.ConfigError
		cmdErr    vierrors.CommandError
		exitErr   vierrors.ExitError
	)
	if errors.As(err, &userErr) || errors.As(err, &configErr) || errors.As(err, &cmdErr) || errors.As(err, &exitErr) {
		return err
	}

	for _, s := range suggestions {
		if errors.Is(err, s.err) {
			return vierrors.UserError{
				Message:    s.message,
				Details:    err.Error(),
				Suggestion: s.suggestion,
				Err:        err,
			}
		}
	}

	if apiErr, ok := vault.AsAPIError(err); ok && apiErr.Unauthorized() {
		return vierrors.UserError{
			Message:    "Permission denied by Vault",
			Details:    err.Error(),
			Suggestion: "Check that your token's policy grants read access to this path",
			Err:        err,
		}
	}

	return vierrors.SimplifyError(err)
}
