// Package auth obtains a Vault token by logging in with LDAP or userpass
// credentials, by using a supplied token, or by reusing a cached token that
// still passes a validity probe.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/systmms/vault-inject/internal/vault"
)

var (
	// ErrUnauthorized is returned when Vault rejects the credentials.
	ErrUnauthorized = errors.New("authentication rejected")
	// ErrMalformedResponse is returned when a login response carries no
	// auth.client_token string.
	ErrMalformedResponse = errors.New("malformed login response")
)

const lookupSelfPath = "auth/token/lookup-self"

// Credentials are the inputs to a login. Empty fields are prompted for by
// Complete.
type Credentials struct {
	Username string
	Password string
	Token    string
	// Path is the auth mount, e.g. auth/ldap. Empty selects the method's
	// default.
	Path string
}

// Complete fills in missing credentials for method using p: a visible prompt
// for the username, hidden prompts for the password and the token.
func (c Credentials) Complete(method Method, p Prompter) (Credentials, error) {
	var err error
	switch {
	case method == MethodToken:
		if c.Token == "" {
			if c.Token, err = p.PromptHidden("Vault token"); err != nil {
				return c, err
			}
		}
	case method.needsCredentials():
		if c.Username == "" {
			if c.Username, err = p.Prompt("Username"); err != nil {
				return c, err
			}
		}
		if c.Password == "" {
			if c.Password, err = p.PromptHidden("Password"); err != nil {
				return c, err
			}
		}
	}
	return c, nil
}

func (c Credentials) mountPath(method Method) string {
	path := strings.Trim(c.Path, "/")
	if path == "" {
		path = method.DefaultPath()
	}
	return path
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Auth map[string]interface{} `json:"auth"`
}

// Login exchanges credentials for a token. For MethodToken the supplied token
// is returned unchanged and no request is made.
func Login(ctx context.Context, client *vault.Client, method Method, creds Credentials) (string, error) {
	if method == MethodToken {
		if creds.Token == "" {
			return "", fmt.Errorf("%w: no token supplied", ErrUnauthorized)
		}
		return creds.Token, nil
	}
	if creds.Username == "" {
		return "", fmt.Errorf("%w: no username supplied for %s login", ErrUnauthorized, method)
	}

	path := fmt.Sprintf("%s/login/%s", creds.mountPath(method), url.PathEscape(creds.Username))

	var resp loginResponse
	if err := client.Post(ctx, path, loginRequest{Password: creds.Password}, &resp); err != nil {
		if apiErr, ok := vault.AsAPIError(err); ok && rejected(apiErr) {
			return "", fmt.Errorf("%w: %s login as '%s': %w", ErrUnauthorized, method, creds.Username, err)
		}
		return "", fmt.Errorf("%s login failed: %w", method, err)
	}

	token, ok := resp.Auth["client_token"].(string)
	if !ok || token == "" {
		return "", fmt.Errorf("%w: missing auth.client_token in response from '%s'", ErrMalformedResponse, path)
	}
	return token, nil
}

// IsTokenValid probes token with a lookup-self call. Any failure, including
// transport errors, means the token is not valid.
func IsTokenValid(ctx context.Context, client *vault.Client, token string) bool {
	if token == "" {
		return false
	}
	return client.WithToken(token).Get(ctx, lookupSelfPath, nil) == nil
}

// Vault answers bad credentials with 400 on userpass and ldap.
func rejected(apiErr *vault.APIError) bool {
	return apiErr.Unauthorized() || apiErr.StatusCode == http.StatusBadRequest
}
