// Package vault is a minimal JSON client for the Vault HTTP API. It knows
// nothing about individual endpoints; callers decode responses into their
// own types.
package vault

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/systmms/vault-inject/internal/logging"
)

const DefaultTimeout = 30 * time.Second

// ErrTransport marks requests that never produced an HTTP response.
var ErrTransport = errors.New("vault request failed")

// Config holds connection settings.
type Config struct {
	Address       string        // Vault server address, e.g. https://vault.example.com:8200
	Namespace     string        // X-Vault-Namespace (Vault Enterprise)
	Timeout       time.Duration // Per-request timeout
	TLSSkipVerify bool          // Skip TLS verification (not recommended)
}

// Client issues requests against one Vault server. A Client is immutable;
// WithToken returns a copy, so a token-bearing client can be shared across
// goroutines.
type Client struct {
	base      *url.URL
	namespace string
	token     string
	http      *http.Client
	logger    *logging.Logger
}

// NewClient creates a client without a token.
func NewClient(cfg Config, logger *logging.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, fmt.Errorf("vault address is required")
	}
	base, err := url.Parse(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid vault address '%s': %w", cfg.Address, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid vault address '%s': scheme must be http or https", cfg.Address)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := &http.Client{Timeout: timeout}
	if cfg.TLSSkipVerify {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // opt-in via --tls-skip-verify
		}
	}

	if logger == nil {
		logger = logging.New(false, true)
	}

	return &Client{
		base:      base,
		namespace: cfg.Namespace,
		http:      httpClient,
		logger:    logger,
	}, nil
}

// WithToken returns a copy of the client that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = token
	return &clone
}

// Token returns the token the client sends, if any.
func (c *Client) Token() string {
	return c.token
}

// Address returns the server address.
func (c *Client) Address() string {
	return c.base.String()
}

// Get issues a GET and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST with a JSON body and decodes the JSON response into out.
func (c *Client) Post(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL(path), reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("X-Vault-Token", c.token)
	}
	if c.namespace != "" {
		req.Header.Set("X-Vault-Namespace", c.namespace)
	}

	c.logger.Debug("%s /v1/%s", method, strings.Trim(path, "/"))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s '%s': %w", ErrTransport, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp, path)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from '%s': %w", path, err)
	}
	return nil
}

// apiURL joins the base address, the /v1/ prefix and path, keeping any path
// the base address already has. path is in escaped form: callers escape
// segments that may hold '/' or '%' with url.PathEscape.
func (c *Client) apiURL(path string) string {
	u := *c.base
	prefix := strings.Trim(u.Path, "/")
	if prefix != "" {
		prefix = "/" + prefix
	}
	raw := prefix + "/v1/" + strings.Trim(path, "/")
	unescaped, err := url.PathUnescape(raw)
	if err != nil {
		u.Path, u.RawPath = raw, ""
		return u.String()
	}
	u.Path, u.RawPath = unescaped, raw
	return u.String()
}
