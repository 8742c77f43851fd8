package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/vault-inject/internal/cache"
	"github.com/systmms/vault-inject/internal/logging"
	"github.com/systmms/vault-inject/internal/vault"
)

// fakeVault serves login and lookup-self. Tokens in valid pass the probe.
type fakeVault struct {
	mu         sync.Mutex
	valid      map[string]bool
	password   string
	issue      string
	logins     int
	loginPaths []string
	body       string
}

func (f *fakeVault) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case r.URL.Path == "/v1/auth/token/lookup-self":
			if f.valid[r.Header.Get("X-Vault-Token")] {
				_, _ = w.Write([]byte(`{"data":{"ttl":3600}}`))
				return
			}
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"errors":["permission denied"]}`))
		case r.Method == http.MethodPost:
			f.logins++
			f.loginPaths = append(f.loginPaths, r.URL.EscapedPath())
			var req struct {
				Password string `json:"password"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.Password != f.password {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"errors":["invalid username or password"]}`))
				return
			}
			if f.body != "" {
				_, _ = w.Write([]byte(f.body))
				return
			}
			f.valid[f.issue] = true
			_, _ = w.Write([]byte(`{"auth":{"client_token":"` + f.issue + `"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func (f *fakeVault) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

func (f *fakeVault) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.loginPaths...)
}

func newFakeVault(t *testing.T, f *fakeVault) *vault.Client {
	t.Helper()
	if f.valid == nil {
		f.valid = map[string]bool{}
	}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	client, err := vault.NewClient(vault.Config{Address: srv.URL}, nil)
	require.NoError(t, err)
	return client
}

type memStore struct {
	rec   cache.Record
	saves int
	err   error
}

func (s *memStore) Load() cache.Record { return s.rec }
func (s *memStore) Save(rec cache.Record) error {
	if s.err != nil {
		return s.err
	}
	s.saves++
	s.rec = rec
	return nil
}
func (s *memStore) Clear() error      { s.rec = cache.Record{}; return nil }
func (s *memStore) Location() string { return "memory" }

type fakePrompter struct {
	visible map[string]string
	hidden  map[string]string
	asked   []string
}

func (p *fakePrompter) Prompt(label string) (string, error) {
	p.asked = append(p.asked, label)
	return p.visible[label], nil
}

func (p *fakePrompter) PromptHidden(label string) (string, error) {
	p.asked = append(p.asked, label)
	return p.hidden[label], nil
}

func TestLogin(t *testing.T) {
	t.Parallel()

	fv := &fakeVault{password: "hunter2", issue: "s.new"}
	client := newFakeVault(t, fv)

	token, err := Login(context.Background(), client, MethodLdap, Credentials{Username: "alice", Password: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, "s.new", token)
	assert.Equal(t, []string{"/v1/auth/ldap/login/alice"}, fv.paths())
}

func TestLoginCustomPath(t *testing.T) {
	t.Parallel()

	fv := &fakeVault{password: "pw", issue: "s.new"}
	client := newFakeVault(t, fv)

	_, err := Login(context.Background(), client, MethodUserPass, Credentials{Username: "bob", Password: "pw", Path: "/auth/corp-users/"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/v1/auth/corp-users/login/bob"}, fv.paths())
}

func TestLoginEscapesUsername(t *testing.T) {
	t.Parallel()

	fv := &fakeVault{password: "pw", issue: "s.new"}
	client := newFakeVault(t, fv)

	_, err := Login(context.Background(), client, MethodUserPass, Credentials{Username: "a/../b", Password: "wrong"})
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, []string{"/v1/auth/userpass/login/a%2F..%2Fb"}, fv.paths())
}

func TestLoginRejected(t *testing.T) {
	t.Parallel()

	client := newFakeVault(t, &fakeVault{password: "right", issue: "s.new"})

	_, err := Login(context.Background(), client, MethodUserPass, Credentials{Username: "bob", Password: "wrong"})
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, err.Error(), "invalid username or password")
	assert.NotContains(t, err.Error(), "wrong")
}

func TestLoginMalformedResponse(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"no auth":         `{"data":{}}`,
		"no client token": `{"auth":{"policies":["default"]}}`,
		"non-string":      `{"auth":{"client_token":42}}`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			client := newFakeVault(t, &fakeVault{password: "pw", body: body})
			_, err := Login(context.Background(), client, MethodUserPass, Credentials{Username: "bob", Password: "pw"})
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestLoginTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client, err := vault.NewClient(vault.Config{Address: srv.URL}, nil)
	require.NoError(t, err)

	_, err = Login(context.Background(), client, MethodLdap, Credentials{Username: "a", Password: "b"})
	assert.ErrorIs(t, err, vault.ErrTransport)
	assert.False(t, errors.Is(err, ErrUnauthorized))
}

func TestIsTokenValid(t *testing.T) {
	t.Parallel()

	client := newFakeVault(t, &fakeVault{valid: map[string]bool{"s.good": true}})
	ctx := context.Background()

	assert.True(t, IsTokenValid(ctx, client, "s.good"))
	assert.False(t, IsTokenValid(ctx, client, "s.bad"))
	assert.False(t, IsTokenValid(ctx, client, ""))
}

func TestCompletePromptsForMissing(t *testing.T) {
	t.Parallel()

	p := &fakePrompter{
		visible: map[string]string{"Username": "alice"},
		hidden:  map[string]string{"Password": "pw", "Vault token": "s.typed"},
	}

	creds, err := Credentials{}.Complete(MethodLdap, p)
	require.NoError(t, err)
	assert.Equal(t, "alice", creds.Username)
	assert.Equal(t, "pw", creds.Password)

	creds, err = Credentials{Username: "given"}.Complete(MethodUserPass, p)
	require.NoError(t, err)
	assert.Equal(t, "given", creds.Username)

	creds, err = Credentials{}.Complete(MethodToken, p)
	require.NoError(t, err)
	assert.Equal(t, "s.typed", creds.Token)

	assert.Equal(t, []string{"Username", "Password", "Password", "Vault token"}, p.asked)
}

func TestCompleteNonInteractive(t *testing.T) {
	t.Parallel()

	_, err := Credentials{Username: "alice"}.Complete(MethodLdap, NonInteractivePrompter{})
	assert.ErrorIs(t, err, ErrNonInteractive)
}

func quietLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, false, true)
}

func TestManagerExplicitTokenBypassesCache(t *testing.T) {
	t.Parallel()

	fv := &fakeVault{}
	client := newFakeVault(t, fv)
	store := &memStore{rec: cache.Record{LastToken: "s.cached"}}

	m := NewManager(client, Options{
		Method:      MethodToken,
		Credentials: Credentials{Token: "s.explicit"},
		Store:       store,
		Logger:      quietLogger(),
	})

	token, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s.explicit", token)
	assert.Equal(t, 0, store.saves)
	assert.Equal(t, "s.cached", store.rec.LastToken)
	assert.Equal(t, 0, fv.loginCount())
}

func TestManagerReusesValidCachedToken(t *testing.T) {
	t.Parallel()

	fv := &fakeVault{valid: map[string]bool{"s.cached": true}}
	client := newFakeVault(t, fv)
	store := &memStore{rec: cache.Record{LastToken: "s.cached"}}

	m := NewManager(client, Options{Method: MethodLdap, Store: store, Logger: quietLogger()})

	token, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s.cached", token)
	assert.Equal(t, 0, fv.loginCount(), "no login and no prompt when the cached token is valid")
}

func TestManagerInvalidCachedTokenTriggersLogin(t *testing.T) {
	t.Parallel()

	fv := &fakeVault{password: "pw", issue: "s.fresh"}
	client := newFakeVault(t, fv)
	store := &memStore{rec: cache.Record{LastToken: "s.expired"}}

	m := NewManager(client, Options{
		Method:      MethodUserPass,
		Credentials: Credentials{Username: "alice", Password: "pw"},
		Store:       store,
		Logger:      quietLogger(),
	})

	token, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s.fresh", token)
	assert.Equal(t, 1, fv.loginCount())
	assert.Equal(t, "s.fresh", store.rec.LastToken, "the cache is overwritten")
}

func TestManagerNoCacheRead(t *testing.T) {
	t.Parallel()

	fv := &fakeVault{valid: map[string]bool{"s.cached": true}, password: "pw", issue: "s.fresh"}
	client := newFakeVault(t, fv)
	store := &memStore{rec: cache.Record{LastToken: "s.cached"}}

	m := NewManager(client, Options{
		Method:      MethodUserPass,
		Credentials: Credentials{Username: "alice", Password: "pw"},
		Store:       store,
		NoCacheRead: true,
		Logger:      quietLogger(),
	})

	token, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s.fresh", token)
	assert.Equal(t, "s.fresh", store.rec.LastToken)
}

func TestManagerNoCacheWrite(t *testing.T) {
	t.Parallel()

	fv := &fakeVault{password: "pw", issue: "s.fresh"}
	client := newFakeVault(t, fv)
	store := &memStore{}

	m := NewManager(client, Options{
		Method:       MethodUserPass,
		Credentials:  Credentials{Username: "alice", Password: "pw"},
		Store:        store,
		NoCacheWrite: true,
		Logger:       quietLogger(),
	})

	_, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, store.saves)
}

func TestManagerSaveFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	fv := &fakeVault{password: "pw", issue: "s.fresh"}
	client := newFakeVault(t, fv)

	m := NewManager(client, Options{
		Method:      MethodUserPass,
		Credentials: Credentials{Username: "alice", Password: "pw"},
		Store:       &memStore{err: errors.New("read-only file system")},
		Logger:      quietLogger(),
	})

	token, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s.fresh", token)
}

func TestManagerPromptsOnlyAfterCacheMiss(t *testing.T) {
	t.Parallel()

	fv := &fakeVault{password: "pw", issue: "s.fresh"}
	client := newFakeVault(t, fv)
	p := &fakePrompter{
		visible: map[string]string{"Username": "alice"},
		hidden:  map[string]string{"Password": "pw"},
	}

	m := NewManager(client, Options{Method: MethodLdap, Prompter: p, Store: &memStore{}, Logger: quietLogger()})

	authed, err := m.Client(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s.fresh", authed.Token())
	assert.Equal(t, []string{"Username", "Password"}, p.asked)
	assert.Equal(t, []string{"/v1/auth/ldap/login/alice"}, fv.paths())
}
