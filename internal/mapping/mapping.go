// Package mapping parses secret mapping rules of the form
//
//	ENV_VAR_TEMPLATE=path/to/secret/key_template [| filter_command]*
//
// into a SecretMapping that the pipeline can resolve.
package mapping

import (
	"errors"
	"fmt"
	"strings"

	"github.com/systmms/vault-inject/internal/address"
	"github.com/systmms/vault-inject/internal/template"
)

var (
	// ErrMissingEquals is returned when a mapping has no '='.
	ErrMissingEquals = errors.New("missing '=' in secret mapping")
	// ErrEmptyFilter is returned when a '|' is not followed by a command.
	ErrEmptyFilter = errors.New("empty filter command")
	// ErrMissingVariable is returned when nothing precedes the '='.
	ErrMissingVariable = errors.New("missing environment variable name")
	// ErrMissingPath is returned when the secret side has no path/key split.
	ErrMissingPath = errors.New("secret must be given as path/key")
	// ErrUnboundParameter is returned when the env var template uses a
	// placeholder that the key template cannot capture.
	ErrUnboundParameter = errors.New("unbound template parameter")
)

// SecretMapping is one user-declared rule mapping secret keys to
// environment variables.
type SecretMapping struct {
	// Source is the raw mapping string.
	Source string
	// Scheme is set when the path was given as a legacy address such as
	// kv2://app/db/key. It is address.SchemeNone for mount-routed paths.
	Scheme address.Scheme
	// Path is the backend-relative prefix, without a leading '/'.
	Path string
	// Key is matched against every key returned for Path.
	Key *template.Template
	// EnvVar renders the output variable name from Key's captures.
	EnvVar *template.Template
	// Filters are shell commands applied to each value in order.
	Filters []string
}

// Parse parses a single mapping string.
func Parse(s string) (*SecretMapping, error) {
	idx := strings.IndexByte(s, '=')
	if idx < 0 {
		return nil, fmt.Errorf("%w: expected 'ENV_VAR=path/to/secret/key' but got '%s'", ErrMissingEquals, s)
	}

	envSrc := strings.TrimSpace(s[:idx])
	if envSrc == "" {
		return nil, fmt.Errorf("%w: expected 'ENV_VAR=path/to/secret/key' but got '%s'", ErrMissingVariable, s)
	}
	segments := strings.Split(s[idx+1:], "|")
	for i := range segments {
		segments[i] = strings.TrimSpace(segments[i])
		if segments[i] == "" {
			if i == 0 {
				return nil, fmt.Errorf("%w: no secret path given in '%s'", ErrMissingPath, s)
			}
			return nil, fmt.Errorf("%w: every '|' must forward to a command, but command %d of '%s' is missing", ErrEmptyFilter, i, s)
		}
	}

	scheme, rest := address.SplitScheme(segments[0])

	pathSrc, keySrc, ok := splitPathAndKey(rest)
	if !ok {
		return nil, fmt.Errorf("%w: expected the secret path to have at least one '/' in it but got '%s'", ErrMissingPath, segments[0])
	}

	key, err := template.Compile(keySrc)
	if err != nil {
		return nil, fmt.Errorf("invalid key template '%s': %w", keySrc, err)
	}
	envVar, err := template.Compile(envSrc)
	if err != nil {
		return nil, fmt.Errorf("invalid environment variable template '%s': %w", envSrc, err)
	}
	if !envVar.ParamsSubsetOf(key) {
		return nil, fmt.Errorf("%w: the environment variable pattern '%s' contains parameters not seen in the key '%s'", ErrUnboundParameter, envSrc, keySrc)
	}

	return &SecretMapping{
		Source:  s,
		Scheme:  scheme,
		Path:    strings.TrimLeft(pathSrc, "/"),
		Key:     key,
		EnvVar:  envVar,
		Filters: segments[1:],
	}, nil
}

// ParseAll parses every mapping and reports all malformed ones together.
func ParseAll(specs []string) ([]*SecretMapping, error) {
	mappings := make([]*SecretMapping, 0, len(specs))
	var errs []error
	for _, s := range specs {
		m, err := Parse(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		mappings = append(mappings, m)
	}
	if len(errs) > 0 {
		return nil, joinParseErrors(errs)
	}
	return mappings, nil
}

// EnvVarForKey returns the environment variable name for a secret key, or
// false if the key does not match this mapping.
func (m *SecretMapping) EnvVarForKey(key string) (string, bool) {
	captures, ok := m.Key.Match(key)
	if !ok {
		return "", false
	}
	return m.EnvVar.Render(captures), true
}

// SingleKey reports whether the mapping names exactly one field.
func (m *SecretMapping) SingleKey() bool {
	return m.Key.IsLiteral()
}

func (m *SecretMapping) String() string {
	return m.Source
}

// splitPathAndKey splits on the last '/'. A '/' at index 0 alone is not a
// path, so "/hello" is rejected.
func splitPathAndKey(s string) (string, string, bool) {
	idx := strings.LastIndexByte(s, '/')
	if idx <= 0 {
		return "", "", false
	}
	return s[:idx], s[idx+1:], true
}
