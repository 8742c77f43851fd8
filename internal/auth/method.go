package auth

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownMethod is returned by ParseMethod for unrecognised selectors.
var ErrUnknownMethod = errors.New("unknown authentication method")

// Method selects how a token is obtained.
type Method int

const (
	MethodUserPass Method = iota
	MethodLdap
	MethodToken
)

var methodAliases = map[string]Method{
	"ldap":              MethodLdap,
	"userpass":          MethodUserPass,
	"user-pass":         MethodUserPass,
	"username-password": MethodUserPass,
	"username":          MethodUserPass,
	"user":              MethodUserPass,
	"token":             MethodToken,
}

// ParseMethod parses a method selector, case-insensitively.
func ParseMethod(s string) (Method, error) {
	if m, ok := methodAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return m, nil
	}
	return 0, fmt.Errorf("%w '%s': valid options are ldap, userpass (or user-pass, username-password, username, user), token", ErrUnknownMethod, s)
}

func (m Method) String() string {
	switch m {
	case MethodLdap:
		return "ldap"
	case MethodToken:
		return "token"
	default:
		return "userpass"
	}
}

// DefaultPath is the auth mount used when none is configured.
func (m Method) DefaultPath() string {
	switch m {
	case MethodLdap:
		return "auth/ldap"
	case MethodUserPass:
		return "auth/userpass"
	default:
		return ""
	}
}

// needsCredentials reports whether the method logs in with username and
// password.
func (m Method) needsCredentials() bool {
	return m == MethodLdap || m == MethodUserPass
}
