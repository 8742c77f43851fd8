// Package pipeline resolves parsed secret mappings into environment
// variables. Mappings are resolved concurrently; the run succeeds only if
// every mapping does.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/systmms/vault-inject/internal/address"
	"github.com/systmms/vault-inject/internal/logging"
	"github.com/systmms/vault-inject/internal/mapping"
	"github.com/systmms/vault-inject/internal/metrics"
	"github.com/systmms/vault-inject/internal/secretstore"
)

// DefaultConcurrency bounds how many mappings resolve at once.
const DefaultConcurrency = 10

// ErrDuplicateVariable is returned when two resolved values target the same
// environment variable.
var ErrDuplicateVariable = errors.New("duplicate environment variable")

// ErrInvalidVariable is returned when a rendered variable name is empty or
// contains '=' or NUL, either of which would corrupt the child environment.
var ErrInvalidVariable = errors.New("invalid environment variable name")

// SecretLookup reads the secret stored at a path.
type SecretLookup interface {
	Lookup(ctx context.Context, scheme address.Scheme, path string) (*secretstore.Secret, error)
}

// ValueFilter transforms a value through filter commands.
type ValueFilter interface {
	Apply(ctx context.Context, value string, filters []string) (string, error)
}

// Variable is one resolved environment variable.
type Variable struct {
	Name   string
	Value  string
	Source *mapping.SecretMapping
}

// Pipeline resolves mappings against a secret store.
type Pipeline struct {
	store       SecretLookup
	filters     ValueFilter
	concurrency int
	metrics     *metrics.Recorder
	logger      *logging.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConcurrency sets how many mappings resolve at once.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithMetrics records resolution timing.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(p *Pipeline) { p.metrics = rec }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// New creates a Pipeline.
func New(store SecretLookup, filters ValueFilter, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:       store,
		filters:     filters,
		concurrency: DefaultConcurrency,
		logger:      logging.New(false, true),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Resolve resolves every mapping. On the first failure the remaining work is
// cancelled and no variables are returned.
func (p *Pipeline) Resolve(ctx context.Context, mappings []*mapping.SecretMapping) ([]Variable, error) {
	start := time.Now()
	defer func() { p.metrics.ObserveResolve(time.Since(start)) }()

	results := make([][]Variable, len(mappings))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, m := range mappings {
		g.Go(func() error {
			vars, err := p.resolveOne(gctx, m)
			if err != nil {
				return fmt.Errorf("secret mapping '%s': %w", m, err)
			}
			results[i] = vars
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return merge(results)
}

// ResolveEnv is Resolve returning a name to value map.
func (p *Pipeline) ResolveEnv(ctx context.Context, mappings []*mapping.SecretMapping) (map[string]string, error) {
	vars, err := p.Resolve(ctx, mappings)
	if err != nil {
		return nil, err
	}
	env := make(map[string]string, len(vars))
	for _, v := range vars {
		env[v.Name] = v.Value
	}
	return env, nil
}

func (p *Pipeline) resolveOne(ctx context.Context, m *mapping.SecretMapping) ([]Variable, error) {
	secret, err := p.store.Lookup(ctx, m.Scheme, m.Path)
	if err != nil {
		return nil, err
	}

	if m.SingleKey() {
		value, err := secret.Get(m.Key.String())
		if err != nil {
			return nil, err
		}
		name, _ := m.EnvVarForKey(m.Key.String())
		v, err := p.variable(ctx, m, name, value)
		if err != nil {
			return nil, err
		}
		return []Variable{v}, nil
	}

	keys := make([]string, 0, len(secret.Data))
	for k := range secret.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var vars []Variable
	for _, key := range keys {
		name, ok := m.EnvVarForKey(key)
		if !ok {
			continue
		}
		v, err := p.variable(ctx, m, name, secret.Data[key])
		if err != nil {
			return nil, err
		}
		vars = append(vars, v)
	}
	if len(vars) == 0 {
		p.logger.Warn("Secret mapping '%s' matched no keys in %s", m, secret.Location)
	}
	return vars, nil
}

func (p *Pipeline) variable(ctx context.Context, m *mapping.SecretMapping, name, value string) (Variable, error) {
	if name == "" || strings.ContainsAny(name, "=\x00") {
		return Variable{}, fmt.Errorf("%w: %q rendered from '%s'", ErrInvalidVariable, name, m)
	}
	if len(m.Filters) > 0 {
		filtered, err := p.filters.Apply(ctx, value, m.Filters)
		if err != nil {
			return Variable{}, fmt.Errorf("variable %s: %w", name, err)
		}
		value = filtered
	}
	p.logger.Debug("Resolved %s from %s", name, m.Path)
	return Variable{Name: name, Value: value, Source: m}, nil
}

// merge flattens results in mapping order and rejects duplicate names.
func merge(results [][]Variable) ([]Variable, error) {
	seen := make(map[string]*mapping.SecretMapping)
	var out []Variable
	for _, vars := range results {
		for _, v := range vars {
			if prev, ok := seen[v.Name]; ok {
				return nil, fmt.Errorf("%w: %s is produced by both '%s' and '%s'", ErrDuplicateVariable, v.Name, prev, v.Source)
			}
			seen[v.Name] = v.Source
			out = append(out, v)
		}
	}
	return out, nil
}
