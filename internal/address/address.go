// Package address parses single-key secret addresses such as
// kv2://app/db/password.
package address

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTrailingSlash is returned for addresses ending in '/'.
	ErrTrailingSlash = errors.New("secret address must not end in '/'")
	// ErrUnknownScheme is returned for a scheme other than kv1, kv2 or cubbyhole.
	ErrUnknownScheme = errors.New("unknown secret address scheme")
	// ErrMissingKey is returned when the address has no path/key split.
	ErrMissingKey = errors.New("secret address must point to a single key")
)

// Scheme selects the storage backend of an address.
type Scheme int

const (
	// SchemeNone means the path is routed through the discovered mount table.
	SchemeNone Scheme = iota
	SchemeKV1
	SchemeKV2
	SchemeCubbyhole
)

var schemePrefixes = []struct {
	prefix string
	scheme Scheme
}{
	{"kv1://", SchemeKV1},
	{"kv2://", SchemeKV2},
	{"cubbyhole://", SchemeCubbyhole},
}

func (s Scheme) String() string {
	switch s {
	case SchemeKV1:
		return "kv1"
	case SchemeKV2:
		return "kv2"
	case SchemeCubbyhole:
		return "cubbyhole"
	default:
		return "mount"
	}
}

// DefaultMount is the mount an explicit scheme is read from.
func (s Scheme) DefaultMount() string {
	switch s {
	case SchemeKV1, SchemeKV2:
		return "secret"
	case SchemeCubbyhole:
		return "cubbyhole"
	default:
		return ""
	}
}

// Address is a parsed single-key secret reference.
type Address struct {
	Scheme Scheme
	// Path is relative to the scheme's mount, or the full mount-routed path
	// when Scheme is SchemeNone.
	Path string
	Key  string
}

// Parse parses an address. Leading slashes are ignored.
func Parse(s string) (Address, error) {
	trimmed := strings.TrimLeft(strings.TrimSpace(s), "/")
	if strings.HasSuffix(trimmed, "/") {
		return Address{}, fmt.Errorf("%w: '%s'", ErrTrailingSlash, s)
	}

	scheme, rest := SplitScheme(trimmed)
	if scheme == SchemeNone && strings.Contains(rest, "://") {
		return Address{}, fmt.Errorf("%w: '%s' does not start with one of 'kv1://', 'kv2://' or 'cubbyhole://'", ErrUnknownScheme, s)
	}

	idx := strings.LastIndexByte(rest, '/')
	if idx <= 0 || idx == len(rest)-1 {
		return Address{}, fmt.Errorf("%w: '%s' has no key after the path", ErrMissingKey, s)
	}

	return Address{
		Scheme: scheme,
		Path:   strings.TrimLeft(rest[:idx], "/"),
		Key:    rest[idx+1:],
	}, nil
}

// SplitScheme removes a known scheme prefix. It returns SchemeNone and the
// input unchanged when there is none.
func SplitScheme(s string) (Scheme, string) {
	trimmed := strings.TrimLeft(s, "/")
	for _, sp := range schemePrefixes {
		if strings.HasPrefix(trimmed, sp.prefix) {
			return sp.scheme, trimmed[len(sp.prefix):]
		}
	}
	return SchemeNone, s
}

func (a Address) String() string {
	if a.Scheme == SchemeNone {
		return a.Path + "/" + a.Key
	}
	return a.Scheme.String() + "://" + a.Path + "/" + a.Key
}
