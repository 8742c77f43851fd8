package secretstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

const mountsPath = "sys/internal/ui/mounts"

// StorageType is a secret engine this tool can read.
type StorageType int

const (
	KV1 StorageType = iota + 1
	KV2
	Cubbyhole
)

func (t StorageType) String() string {
	switch t {
	case KV1:
		return "kv1"
	case KV2:
		return "kv2"
	case Cubbyhole:
		return "cubbyhole"
	default:
		return "unknown"
	}
}

// Mount is one discovered secret engine. Prefix has no surrounding '/'.
type Mount struct {
	Type   StorageType
	Prefix string
}

// MountTable routes paths to mounts. It is read-only once built.
type MountTable struct {
	mounts []Mount
}

// NewMountTable builds a table from mounts. Prefixes are normalised and
// duplicate prefixes collapse to the last one given.
func NewMountTable(mounts ...Mount) *MountTable {
	byPrefix := make(map[string]Mount, len(mounts))
	for _, m := range mounts {
		m.Prefix = strings.Trim(m.Prefix, "/")
		if m.Prefix == "" {
			continue
		}
		byPrefix[m.Prefix] = m
	}

	table := &MountTable{mounts: make([]Mount, 0, len(byPrefix))}
	for _, m := range byPrefix {
		table.mounts = append(table.mounts, m)
	}
	// Longest prefix first, so secret/inner wins over secret.
	sort.Slice(table.mounts, func(i, j int) bool {
		a, b := table.mounts[i].Prefix, table.mounts[j].Prefix
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})
	return table
}

// Mounts returns the mounts, longest prefix first.
func (t *MountTable) Mounts() []Mount {
	out := make([]Mount, len(t.mounts))
	copy(out, t.mounts)
	return out
}

// Resolve finds the mount serving path and returns the path relative to it.
// Prefixes only match whole segments: mount "secret" serves "secret/app" but
// not "secretive/app". A path naming a mount exactly has nothing left to read
// on that mount, so it resolves through the enclosing mount if there is one.
func (t *MountTable) Resolve(path string) (Mount, string, error) {
	path = strings.TrimLeft(path, "/")
	for _, m := range t.mounts {
		if !strings.HasPrefix(path, m.Prefix+"/") {
			continue
		}
		remaining := strings.Trim(path[len(m.Prefix)+1:], "/")
		if remaining == "" {
			break
		}
		return m, remaining, nil
	}
	return Mount{}, "", fmt.Errorf("%w: no kv or cubbyhole mount serves '%s'", ErrUnsupported, path)
}

type mountsResponse struct {
	Data struct {
		Secret map[string]struct {
			Type    string                 `json:"type"`
			Options map[string]interface{} `json:"options"`
		} `json:"secret"`
	} `json:"data"`
}

// Discover lists the secret engines mounted on the server. Engines other
// than kv, generic and cubbyhole are left out.
func Discover(ctx context.Context, client Getter) (*MountTable, error) {
	var resp mountsResponse
	if err := client.Get(ctx, mountsPath, &resp); err != nil {
		return nil, fmt.Errorf("failed to list secret mounts: %w", err)
	}

	if resp.Data.Secret == nil {
		return nil, fmt.Errorf("%w: no data.secret object in '%s'", ErrMalformedResponse, mountsPath)
	}

	var mounts []Mount
	for prefix, info := range resp.Data.Secret {
		storage, ok := storageFor(info.Type, info.Options)
		if !ok {
			continue
		}
		mounts = append(mounts, Mount{Type: storage, Prefix: prefix})
	}
	return NewMountTable(mounts...), nil
}

func storageFor(engine string, options map[string]interface{}) (StorageType, bool) {
	switch engine {
	case "kv":
		if v, _ := options["version"].(string); v == "1" {
			return KV1, true
		}
		return KV2, true
	case "generic":
		return KV1, true
	case "cubbyhole":
		return Cubbyhole, true
	default:
		return 0, false
	}
}
