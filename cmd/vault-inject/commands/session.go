package commands

import (
	"context"
	"sync"

	"github.com/spf13/cobra"

	"github.com/systmms/vault-inject/internal/auth"
	"github.com/systmms/vault-inject/internal/cache"
	"github.com/systmms/vault-inject/internal/config"
	"github.com/systmms/vault-inject/internal/logging"
	"github.com/systmms/vault-inject/internal/metrics"
	"github.com/systmms/vault-inject/internal/secretstore"
	"github.com/systmms/vault-inject/internal/vault"
)

// session carries what one command invocation needs to talk to Vault.
type session struct {
	cfg         *config.Config
	settings    config.Settings
	method      auth.Method
	logger      *logging.Logger
	client      *vault.Client
	metrics     *metrics.Recorder
	metricsFile string
	flushOnce   sync.Once
}

func newSession(cmd *cobra.Command, cfg *config.Config, flags *connectionFlags) (*session, error) {
	settings, err := flags.settings(cmd, cfg)
	if err != nil {
		return nil, err
	}
	return newSessionWithSettings(cfg, settings, flags.metricsFile)
}

func newSessionWithSettings(cfg *config.Config, settings config.Settings, metricsFile string) (*session, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	method, err := auth.ParseMethod(settings.AuthType)
	if err != nil {
		return nil, friendlyError(err)
	}

	client, err := vault.NewClient(vault.Config{
		Address:       settings.VaultURL,
		Namespace:     settings.Namespace,
		Timeout:       settings.Timeout,
		TLSSkipVerify: settings.TLSSkipVerify,
	}, cfg.Logger)
	if err != nil {
		return nil, friendlyError(err)
	}
	if settings.TLSSkipVerify {
		cfg.Logger.Warn("TLS certificate verification is disabled")
	}

	s := &session{
		cfg:         cfg,
		settings:    settings,
		method:      method,
		logger:      cfg.Logger,
		client:      client,
		metricsFile: metricsFile,
	}
	if metricsFile != "" {
		s.metrics = metrics.New()
	}
	return s, nil
}

// cacheStore returns the configured token cache backend.
func cacheStore(settings config.Settings) (cache.Store, error) {
	if err := config.ValidateBackend(settings.CacheBackend); err != nil {
		return nil, err
	}
	if settings.CacheBackend == config.KeyringBackend {
		return cache.NewKeyringStore(), nil
	}
	return cache.NewFileStore("")
}

// prompter returns an interactive prompter only when stdin is a terminal
// and --non-interactive was not given.
func (s *session) prompter() auth.Prompter {
	if s.cfg.NonInteractive {
		return auth.NonInteractivePrompter{}
	}
	tp := auth.NewTerminalPrompter()
	if !tp.IsInteractive() {
		return auth.NonInteractivePrompter{}
	}
	return tp
}

// login returns a client carrying a valid token.
func (s *session) login(ctx context.Context) (*vault.Client, error) {
	var store cache.Store
	if !s.settings.NoCacheRead || !s.settings.NoCacheWrite {
		st, err := cacheStore(s.settings)
		if err != nil {
			s.logger.Warn("Token cache unavailable: %v", err)
		} else {
			store = st
		}
	}

	manager := auth.NewManager(s.client, auth.Options{
		Method: s.method,
		Credentials: auth.Credentials{
			Username: s.settings.Username,
			Password: s.settings.Password,
			Token:    s.settings.Token,
			Path:     s.settings.AuthPath,
		},
		Prompter:     s.prompter(),
		Store:        store,
		NoCacheRead:  s.settings.NoCacheRead,
		NoCacheWrite: s.settings.NoCacheWrite,
		Metrics:      s.metrics,
		Logger:       s.logger,
	})

	client, err := manager.Client(ctx)
	if err != nil {
		return nil, friendlyError(err)
	}
	return client, nil
}

// secretStore builds a store over client, discovering mounts only when a
// mount-routed path needs them.
func (s *session) secretStore(ctx context.Context, client *vault.Client, discover bool) (*secretstore.Store, error) {
	var mounts *secretstore.MountTable
	if discover {
		var err error
		mounts, err = secretstore.Discover(ctx, client)
		if err != nil {
			return nil, friendlyError(err)
		}
		s.logger.Debug("Discovered %d secret mounts", len(mounts.Mounts()))
	}
	return secretstore.New(client, mounts, s.metrics, s.logger), nil
}

// flushMetrics writes --metrics-file once. Failures are logged, not fatal.
func (s *session) flushMetrics() {
	s.flushOnce.Do(func() {
		if s.metrics == nil {
			return
		}
		if err := s.metrics.WriteFile(s.metricsFile); err != nil {
			s.logger.Warn("%v", err)
		}
	})
}
