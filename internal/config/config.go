package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	vierrors "github.com/systmms/vault-inject/internal/errors"
	"github.com/systmms/vault-inject/internal/logging"
)

// DefaultPath is the config file looked for in the working directory.
const DefaultPath = "vault-inject.yaml"

// Environment variables that provide defaults for flags.
const (
	EnvVaultAddr    = "VAULT_ADDR"
	EnvNamespace    = "VAULT_NAMESPACE"
	EnvSkipVerify   = "VAULT_SKIP_VERIFY"
	EnvAuthType     = "VAULT_INJECT_AUTH_TYPE"
	EnvAuthPath     = "VAULT_INJECT_AUTH_PATH"
	EnvUsername     = "VAULT_INJECT_USERNAME"
	EnvPassword     = "VAULT_INJECT_PASSWORD"
	EnvToken        = "VAULT_INJECT_TOKEN"
	EnvCacheBackend = "VAULT_INJECT_CACHE_BACKEND"
	EnvTimeout      = "VAULT_INJECT_TIMEOUT"
)

const (
	DefaultAuthType = "userpass"
	DefaultBackend  = "file"
	KeyringBackend  = "keyring"
	DefaultTimeout  = 30 * time.Second
)

//go:embed schema.json
var schema string

// Config holds the runtime configuration
type Config struct {
	Path           string
	PathExplicit   bool // Path was given with --config, so it must exist
	Logger         *logging.Logger
	NonInteractive bool
	Definition     *Definition
}

// Definition represents the vault-inject.yaml structure
type Definition struct {
	VaultURL      string      `yaml:"vault_url"`
	Namespace     string      `yaml:"namespace"`
	AuthType      string      `yaml:"auth_type"`
	AuthPath      string      `yaml:"auth_path"`
	Username      string      `yaml:"username"`
	TLSSkipVerify *bool       `yaml:"tls_skip_verify"`
	Timeout       string      `yaml:"timeout"`
	Cache         CacheConfig `yaml:"cache"`
	Secrets       []string    `yaml:"secrets"`
}

// CacheConfig controls the token cache
type CacheConfig struct {
	Backend string `yaml:"backend"`
	Read    *bool  `yaml:"read"`
	Write   *bool  `yaml:"write"`
}

// Settings are the effective values after merging defaults, the config
// file and the environment. Flags are applied on top by the CLI.
type Settings struct {
	VaultURL      string
	Namespace     string
	AuthType      string
	AuthPath      string
	Username      string
	Password      string
	Token         string
	TLSSkipVerify bool
	Timeout       time.Duration
	CacheBackend  string
	NoCacheRead   bool
	NoCacheWrite  bool
	Secrets       []string
}

// Load reads and validates the config file. A missing file is only an error
// when its path was given explicitly.
func (c *Config) Load() error {
	c.Definition = &Definition{}

	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			if !c.PathExplicit {
				return nil
			}
			return vierrors.ConfigError{
				Field:      "path",
				Value:      c.Path,
				Message:    "configuration file not found",
				Suggestion: "Check the path given to --config",
			}
		}
		return vierrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	def, err := Parse(data)
	if err != nil {
		return err
	}
	c.Definition = def
	if c.Logger != nil {
		c.Logger.Debug("Loaded configuration from %s", c.Path)
	}
	return nil
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (*Definition, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, vierrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
		}
	}
	if raw == nil {
		return &Definition{}, nil
	}
	if err := validate(raw); err != nil {
		return nil, err
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, vierrors.ConfigError{
			Message: fmt.Sprintf("invalid configuration: %v", err),
		}
	}
	return &def, nil
}

// validate checks the document against the embedded JSON schema
func validate(doc interface{}) error {
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal data for validation: %w", err)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(schema), gojsonschema.NewBytesLoader(jsonData))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		var errorMessages []string
		for _, desc := range result.Errors() {
			errorMessages = append(errorMessages, desc.String())
		}
		return vierrors.ConfigError{
			Message:    "schema validation failed:\n  - " + strings.Join(errorMessages, "\n  - "),
			Suggestion: "Remove unknown keys; credentials other than username belong in flags or environment variables",
		}
	}
	return nil
}

// Settings merges defaults, the file and the environment, in increasing
// order of precedence. lookupEnv is usually os.LookupEnv.
func (c *Config) Settings(lookupEnv func(string) (string, bool)) (Settings, error) {
	def := c.Definition
	if def == nil {
		def = &Definition{}
	}

	s := Settings{
		VaultURL:     def.VaultURL,
		Namespace:    def.Namespace,
		AuthType:     firstNonEmpty(def.AuthType, DefaultAuthType),
		AuthPath:     def.AuthPath,
		Username:     def.Username,
		Timeout:      DefaultTimeout,
		CacheBackend: firstNonEmpty(def.Cache.Backend, DefaultBackend),
		Secrets:      append([]string(nil), def.Secrets...),
	}
	if def.TLSSkipVerify != nil {
		s.TLSSkipVerify = *def.TLSSkipVerify
	}
	if def.Cache.Read != nil {
		s.NoCacheRead = !*def.Cache.Read
	}
	if def.Cache.Write != nil {
		s.NoCacheWrite = !*def.Cache.Write
	}
	if def.Timeout != "" {
		d, err := time.ParseDuration(def.Timeout)
		if err != nil {
			return s, vierrors.ConfigError{Field: "timeout", Value: def.Timeout, Message: err.Error()}
		}
		s.Timeout = d
	}

	overlay := func(dst *string, name string) {
		if v, ok := lookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
	overlay(&s.VaultURL, EnvVaultAddr)
	overlay(&s.Namespace, EnvNamespace)
	overlay(&s.AuthType, EnvAuthType)
	overlay(&s.AuthPath, EnvAuthPath)
	overlay(&s.Username, EnvUsername)
	overlay(&s.Password, EnvPassword)
	overlay(&s.Token, EnvToken)
	overlay(&s.CacheBackend, EnvCacheBackend)

	if v, ok := lookupEnv(EnvSkipVerify); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return s, vierrors.ConfigError{Field: EnvSkipVerify, Value: v, Message: "expected true or false"}
		}
		s.TLSSkipVerify = b
	}
	if v, ok := lookupEnv(EnvTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return s, vierrors.ConfigError{Field: EnvTimeout, Value: v, Message: err.Error()}
		}
		s.Timeout = d
	}

	return s, nil
}

// Validate checks settings that every command needs.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.VaultURL) == "" {
		return vierrors.ConfigError{
			Field:      "vault_url",
			Message:    "no Vault address configured",
			Suggestion: "Pass --vault-url, set VAULT_ADDR, or add vault_url to " + DefaultPath,
		}
	}
	return ValidateBackend(s.CacheBackend)
}

// ValidateBackend checks a token cache backend name.
func ValidateBackend(name string) error {
	if name != DefaultBackend && name != KeyringBackend {
		return vierrors.ConfigError{
			Field:      "cache_backend",
			Value:      name,
			Message:    "unsupported cache backend",
			Suggestion: "Use one of: file, keyring",
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
