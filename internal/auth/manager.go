package auth

import (
	"context"

	"github.com/systmms/vault-inject/internal/cache"
	"github.com/systmms/vault-inject/internal/logging"
	"github.com/systmms/vault-inject/internal/metrics"
	"github.com/systmms/vault-inject/internal/vault"
)

// Options configure a Manager.
type Options struct {
	Method      Method
	Credentials Credentials
	Prompter    Prompter

	// Store holds the last token. A nil Store disables caching.
	Store        cache.Store
	NoCacheRead  bool
	NoCacheWrite bool

	Metrics *metrics.Recorder
	Logger  *logging.Logger
}

// Manager produces a token for one run.
type Manager struct {
	client *vault.Client
	opts   Options
}

// NewManager creates a Manager that authenticates against client.
func NewManager(client *vault.Client, opts Options) *Manager {
	if opts.Prompter == nil {
		opts.Prompter = NonInteractivePrompter{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.New(false, true)
	}
	return &Manager{client: client, opts: opts}
}

// Token returns a usable token. An explicit token is used as-is and never
// cached. Otherwise a cached token is reused if it passes the validity
// probe; failing that, the manager logs in and saves the new token.
func (m *Manager) Token(ctx context.Context) (string, error) {
	opts := m.opts
	logger := opts.Logger

	if opts.Method == MethodToken {
		opts.Metrics.RecordTokenCache(metrics.CacheBypassed)
		creds, err := opts.Credentials.Complete(MethodToken, opts.Prompter)
		if err != nil {
			return "", err
		}
		return Login(ctx, m.client, MethodToken, creds)
	}

	if opts.Store != nil && !opts.NoCacheRead {
		if token := opts.Store.Load().LastToken; token != "" {
			if IsTokenValid(ctx, m.client, token) {
				logger.Debug("Using cached token from %s", opts.Store.Location())
				opts.Metrics.RecordTokenCache(metrics.CacheHit)
				return token, nil
			}
			logger.Debug("Cached token is no longer valid, logging in again")
			opts.Metrics.RecordTokenCache(metrics.CacheInvalid)
		} else {
			opts.Metrics.RecordTokenCache(metrics.CacheMiss)
		}
	}

	creds, err := opts.Credentials.Complete(opts.Method, opts.Prompter)
	if err != nil {
		return "", err
	}

	logger.Debug("Logging in with %s at %s", opts.Method, creds.mountPath(opts.Method))
	token, err := Login(ctx, m.client, opts.Method, creds)
	opts.Metrics.RecordLogin(opts.Method.String(), err)
	if err != nil {
		return "", err
	}

	if opts.Store != nil && !opts.NoCacheWrite {
		if err := opts.Store.Save(cache.Record{LastToken: token}); err != nil {
			logger.Warn("Could not cache token: %v", err)
		} else {
			opts.Metrics.RecordTokenCache(metrics.CacheSaved)
		}
	}

	return token, nil
}

// Client returns a copy of the manager's client carrying a valid token.
func (m *Manager) Client(ctx context.Context) (*vault.Client, error) {
	token, err := m.Token(ctx)
	if err != nil {
		return nil, err
	}
	return m.client.WithToken(token), nil
}
