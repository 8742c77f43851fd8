package commands

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/vault-inject/internal/config"
)

// connectionFlags are shared by every command that talks to Vault.
type connectionFlags struct {
	vaultURL      string
	namespace     string
	authType      string
	authPath      string
	username      string
	password      string
	token         string
	tlsSkipVerify bool
	timeout       time.Duration
	cacheBackend  string
	noCache       bool
	noCacheRead   bool
	noCacheWrite  bool
	metricsFile   string
}

func (f *connectionFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.vaultURL, "vault-url", "", "Vault server address (env: VAULT_ADDR)")
	fs.StringVar(&f.namespace, "namespace", "", "Vault Enterprise namespace (env: VAULT_NAMESPACE)")
	fs.StringVar(&f.authType, "auth-type", config.DefaultAuthType, "Authentication method: ldap, userpass or token (env: VAULT_INJECT_AUTH_TYPE)")
	fs.StringVar(&f.authPath, "auth-path", "", "Auth mount path, e.g. auth/ldap (env: VAULT_INJECT_AUTH_PATH)")
	fs.StringVar(&f.username, "username", "", "Username for ldap or userpass login (env: VAULT_INJECT_USERNAME)")
	fs.StringVar(&f.password, "password", "", "Password for ldap or userpass login (env: VAULT_INJECT_PASSWORD)")
	fs.StringVar(&f.token, "token", "", "Vault token for token auth (env: VAULT_INJECT_TOKEN)")
	fs.BoolVar(&f.tlsSkipVerify, "tls-skip-verify", false, "Skip TLS certificate verification (env: VAULT_SKIP_VERIFY)")
	fs.DurationVar(&f.timeout, "timeout", config.DefaultTimeout, "Timeout for each Vault request (env: VAULT_INJECT_TIMEOUT)")
	fs.StringVar(&f.cacheBackend, "cache-backend", config.DefaultBackend, "Token cache backend: file or keyring (env: VAULT_INJECT_CACHE_BACKEND)")
	fs.BoolVar(&f.noCache, "no-cache", false, "Neither read nor write the token cache")
	fs.BoolVar(&f.noCacheRead, "no-cache-read", false, "Do not reuse a cached token")
	fs.BoolVar(&f.noCacheWrite, "no-cache-write", false, "Do not save the token after logging in")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus metrics for this run to the given file")
}

// settings merges config file and environment values with the flags the
// user actually set.
func (f *connectionFlags) settings(cmd *cobra.Command, cfg *config.Config) (config.Settings, error) {
	s, err := cfg.Settings(os.LookupEnv)
	if err != nil {
		return s, err
	}

	fs := cmd.Flags()
	str := func(name string, dst *string, value string) {
		if fs.Changed(name) {
			*dst = value
		}
	}
	str("vault-url", &s.VaultURL, f.vaultURL)
	str("namespace", &s.Namespace, f.namespace)
	str("auth-type", &s.AuthType, f.authType)
	str("auth-path", &s.AuthPath, f.authPath)
	str("username", &s.Username, f.username)
	str("password", &s.Password, f.password)
	str("token", &s.Token, f.token)
	str("cache-backend", &s.CacheBackend, f.cacheBackend)

	if fs.Changed("tls-skip-verify") {
		s.TLSSkipVerify = f.tlsSkipVerify
	}
	if fs.Changed("timeout") {
		s.Timeout = f.timeout
	}
	if f.noCache || f.noCacheRead {
		s.NoCacheRead = true
	}
	if f.noCache || f.noCacheWrite {
		s.NoCacheWrite = true
	}

	return s, nil
}
