package commands

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"

	"github.com/systmms/vault-inject/internal/config"
	"github.com/systmms/vault-inject/internal/logging"
)

// fakeVault is a minimal Vault with a userpass login, a KV v2 mount at
// secret/ and a cubbyhole mount.
type fakeVault struct {
	mu       sync.Mutex
	requests int
	logins   int
	tokens   map[string]bool
	secrets  map[string]string // request path -> JSON body
}

func newFakeVault(t *testing.T) (*fakeVault, *httptest.Server) {
	t.Helper()

	fv := &fakeVault{
		tokens: map[string]bool{},
		secrets: map[string]string{
			"/v1/secret/data/app/creds": `{"data":{"data":{"db_user":"alice","db_pass":"s3cr3t"}}}`,
			"/v1/secret/data/app/api":   `{"data":{"data":{"key":"YXBpLWtleQ=="}}}`,
			"/v1/cubbyhole/mine":        `{"data":{"pin":"1234"}}`,
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fv.mu.Lock()
		defer fv.mu.Unlock()
		fv.requests++

		if r.Method == http.MethodPost && r.URL.Path == "/v1/auth/userpass/login/alice" {
			fv.logins++
			var body struct {
				Password string `json:"password"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.Password != "pw" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"errors":["invalid username or password"]}`))
				return
			}
			fv.tokens["s.issued"] = true
			_, _ = w.Write([]byte(`{"auth":{"client_token":"s.issued"}}`))
			return
		}

		if !fv.tokens[r.Header.Get("X-Vault-Token")] {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"errors":["permission denied"]}`))
			return
		}

		switch r.URL.Path {
		case "/v1/auth/token/lookup-self":
			_, _ = w.Write([]byte(`{"data":{}}`))
		case "/v1/sys/internal/ui/mounts":
			_, _ = w.Write([]byte(`{"data":{"secret":{
				"secret/":    {"type":"kv","options":{"version":"2"}},
				"cubbyhole/": {"type":"cubbyhole","options":null},
				"pki/":       {"type":"pki","options":null}
			}}}`))
		default:
			body, ok := fv.secrets[r.URL.Path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"errors":[]}`))
				return
			}
			_, _ = w.Write([]byte(body))
		}
	}))
	t.Cleanup(srv.Close)
	return fv, srv
}

func (f *fakeVault) counts() (requests, logins int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests, f.logins
}

// isolateEnv blanks every environment variable the CLI reads.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		config.EnvVaultAddr, config.EnvNamespace, config.EnvSkipVerify,
		config.EnvAuthType, config.EnvAuthPath, config.EnvUsername,
		config.EnvPassword, config.EnvToken, config.EnvCacheBackend, config.EnvTimeout,
	} {
		t.Setenv(name, "")
	}
	t.Setenv("VAULT_INJECT_CACHE_DIR", t.TempDir())
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Path:           filepath.Join(t.TempDir(), config.DefaultPath),
		Logger:         logging.NewWithWriter(io.Discard, false, true),
		NonInteractive: true,
	}
}

// execute runs cmd with args and returns stdout.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	var stdout bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetOut(&stdout)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return stdout.String(), err
}

func loginArgs(srv *httptest.Server) []string {
	return []string{"--vault-url", srv.URL, "--username", "alice", "--password", "pw"}
}
