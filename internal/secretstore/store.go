// Package secretstore reads secrets from KV version 1, KV version 2 and
// cubbyhole engines, routing abstract paths to mounts discovered on the
// server, and normalises every response into string key/value pairs.
package secretstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/systmms/vault-inject/internal/address"
	"github.com/systmms/vault-inject/internal/logging"
	"github.com/systmms/vault-inject/internal/metrics"
	"github.com/systmms/vault-inject/internal/vault"
)

var (
	ErrUnsupported    = errors.New("unsupported secret path")
	ErrNotFound       = errors.New("secret not found")
	ErrKeyNotFound    = errors.New("secret key not found")
	ErrNonStringValue = errors.New("secret value is not a string")

	// ErrMalformedResponse is returned when Vault answers with a body that
	// lacks the fields the request expects.
	ErrMalformedResponse = errors.New("unexpected response from vault")
)

// Getter issues authenticated GET requests. *vault.Client implements it.
type Getter interface {
	Get(ctx context.Context, path string, out interface{}) error
}

// Location identifies a fetched secret.
type Location struct {
	Type  StorageType
	Mount string
	Path  string
}

func (l Location) String() string {
	return l.Mount + "/" + l.Path
}

// apiPath is the request path for the engine's read endpoint.
func (l Location) apiPath() string {
	if l.Type == KV2 {
		return escapeSegments(l.Mount) + "/data/" + escapeSegments(l.Path)
	}
	return escapeSegments(l.Mount) + "/" + escapeSegments(l.Path)
}

func escapeSegments(p string) string {
	parts := strings.Split(p, "/")
	for i := range parts {
		parts[i] = url.PathEscape(parts[i])
	}
	return strings.Join(parts, "/")
}

// Secret is the normalised content of one secret.
type Secret struct {
	Location Location
	Data     map[string]string
}

// Get returns one field of the secret.
func (s *Secret) Get(key string) (string, error) {
	v, ok := s.Data[key]
	if !ok {
		return "", fmt.Errorf("%w: field '%s' is not in secret '%s' on %s mount '%s'",
			ErrKeyNotFound, key, s.Location.Path, s.Location.Type, s.Location.Mount)
	}
	return v, nil
}

// Store reads secrets through an authenticated client.
type Store struct {
	client  Getter
	mounts  *MountTable
	metrics *metrics.Recorder
	logger  *logging.Logger
}

// New creates a Store. mounts may be nil when only scheme-qualified
// addresses are read.
func New(client Getter, mounts *MountTable, rec *metrics.Recorder, logger *logging.Logger) *Store {
	if mounts == nil {
		mounts = NewMountTable()
	}
	if logger == nil {
		logger = logging.New(false, true)
	}
	return &Store{client: client, mounts: mounts, metrics: rec, logger: logger}
}

// Mounts returns the routing table.
func (s *Store) Mounts() *MountTable {
	return s.mounts
}

// Locate maps a path to a Location. With address.SchemeNone the path is
// routed through the mount table; otherwise the scheme's default mount is
// used and the whole path is relative to it.
func (s *Store) Locate(scheme address.Scheme, path string) (Location, error) {
	switch scheme {
	case address.SchemeNone:
		mount, remaining, err := s.mounts.Resolve(path)
		if err != nil {
			return Location{}, err
		}
		return Location{Type: mount.Type, Mount: mount.Prefix, Path: remaining}, nil
	case address.SchemeKV1:
		return Location{Type: KV1, Mount: scheme.DefaultMount(), Path: path}, nil
	case address.SchemeKV2:
		return Location{Type: KV2, Mount: scheme.DefaultMount(), Path: path}, nil
	case address.SchemeCubbyhole:
		return Location{Type: Cubbyhole, Mount: scheme.DefaultMount(), Path: path}, nil
	default:
		return Location{}, fmt.Errorf("%w: unknown scheme for '%s'", ErrUnsupported, path)
	}
}

// Lookup locates and fetches the secret at path.
func (s *Store) Lookup(ctx context.Context, scheme address.Scheme, path string) (*Secret, error) {
	loc, err := s.Locate(scheme, path)
	if err != nil {
		return nil, err
	}
	return s.Fetch(ctx, loc)
}

// FetchKey reads the single field named by addr.
func (s *Store) FetchKey(ctx context.Context, addr address.Address) (string, error) {
	secret, err := s.Lookup(ctx, addr.Scheme, addr.Path)
	if err != nil {
		return "", err
	}
	return secret.Get(addr.Key)
}

// Fetch reads the secret at loc.
func (s *Store) Fetch(ctx context.Context, loc Location) (*Secret, error) {
	start := time.Now()
	data, err := s.fetch(ctx, loc)
	s.metrics.RecordFetch(loc.Type.String(), err)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Fetched %d keys from %s (%s) in %v", len(data), loc, loc.Type, time.Since(start))
	return &Secret{Location: loc, Data: data}, nil
}

type kv2Response struct {
	Data *struct {
		Data map[string]interface{} `json:"data"`
	} `json:"data"`
}

type kv1Response struct {
	Data map[string]interface{} `json:"data"`
}

func (s *Store) fetch(ctx context.Context, loc Location) (map[string]string, error) {
	var raw map[string]interface{}

	switch loc.Type {
	case KV2:
		var resp kv2Response
		if err := s.get(ctx, loc, &resp); err != nil {
			return nil, err
		}
		if resp.Data != nil {
			raw = resp.Data.Data
		}
	case KV1, Cubbyhole:
		var resp kv1Response
		if err := s.get(ctx, loc, &resp); err != nil {
			return nil, err
		}
		raw = resp.Data
	default:
		return nil, fmt.Errorf("%w: storage type %s", ErrUnsupported, loc.Type)
	}

	if raw == nil {
		return nil, fmt.Errorf("%w: '%s' on %s mount '%s' has no data", ErrNotFound, loc.Path, loc.Type, loc.Mount)
	}

	data := make(map[string]string, len(raw))
	for k, v := range raw {
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: field '%s' of '%s' is %T", ErrNonStringValue, k, loc, v)
		}
		data[k] = str
	}
	return data, nil
}

func (s *Store) get(ctx context.Context, loc Location, out interface{}) error {
	err := s.client.Get(ctx, loc.apiPath(), out)
	if err == nil {
		return nil
	}
	if apiErr, ok := vault.AsAPIError(err); ok && apiErr.NotFound() {
		return fmt.Errorf("%w: '%s' on %s mount '%s'", ErrNotFound, loc.Path, loc.Type, loc.Mount)
	}
	return fmt.Errorf("failed to read '%s': %w", loc, err)
}
