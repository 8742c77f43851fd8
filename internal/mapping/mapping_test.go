package mapping

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/vault-inject/internal/address"
	"github.com/systmms/vault-inject/internal/template"
)

func TestParse_Valid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		envVar  string
		path    string
		key     string
		filters []string
	}{
		// leading '/' is stripped, trailing is not
		{"FOO = /hello/foo/bar", "FOO", "hello/foo", "bar", []string{}},
		{"FOO= /hello/foo/bar ", "FOO", "hello/foo", "bar", []string{}},
		{"FOO=/hello/foo/bar ", "FOO", "hello/foo", "bar", []string{}},
		{" FOO=/hello/foo/bar ", "FOO", "hello/foo", "bar", []string{}},
		{"FOO=hello/bar", "FOO", "hello", "bar", []string{}},
		{"FOO= /hello/foo/bar | base64", "FOO", "hello/foo", "bar", []string{"base64"}},
		{"FOO = /a/b | base64 | rev", "FOO", "a", "b", []string{"base64", "rev"}},
		{"FOO=/hello/foo/bar|base64|rev", "FOO", "hello/foo", "bar", []string{"base64", "rev"}},
		{"FOO=/hello/foo/bar|base64| rev ", "FOO", "hello/foo", "bar", []string{"base64", "rev"}},
		{"{bar} = /hello/foo/{bar} ", "{bar}", "hello/foo", "{bar}", []string{}},
		{"FOO_{bar} = /hello/foo/{bar} ", "FOO_{bar}", "hello/foo", "{bar}", []string{}},
		{"DB_{field}=secret/app/creds/{field}", "DB_{field}", "secret/app/creds", "{field}", []string{}},
		// env var may drop key parameters
		{"STATIC=/hello/{bar}", "STATIC", "hello", "{bar}", []string{}},
		{"FOO=/hello/foo/", "FOO", "hello/foo", "", []string{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			m, err := Parse(tt.input)
			require.NoError(t, err)
			assert.True(t, template.MustCompile(tt.envVar).Equal(m.EnvVar), "env var %q", m.EnvVar)
			assert.True(t, template.MustCompile(tt.key).Equal(m.Key), "key %q", m.Key)
			assert.Equal(t, tt.path, m.Path)
			assert.Equal(t, tt.filters, m.Filters)
			assert.Equal(t, address.SchemeNone, m.Scheme)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		err   error
	}{
		{"FOO", ErrMissingEquals},
		{"=secret/app/creds/db_user", ErrMissingVariable},
		{"  = secret/app/creds/db_user", ErrMissingVariable},
		{"FOO /hello/lark", ErrMissingEquals},
		{"FOO =", ErrMissingPath},
		{"FOO = /hello", ErrMissingPath},
		{"FOO = hello", ErrMissingPath},
		{"FOO = /a/b |", ErrEmptyFilter},
		{"FOO = /a/b ||", ErrEmptyFilter},
		{"FOO = /hello/lark ||rev", ErrEmptyFilter},
		{"{a} = /hello/b", ErrUnboundParameter},
		{"{a}_{c} = /hello/{a}_{b}", ErrUnboundParameter},
		{"FOO = /hello/{a}_{a}", template.ErrDuplicateParameter},
		{"{a}{a} = /hello/{a}", template.ErrDuplicateParameter},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			m, err := Parse(tt.input)
			require.Error(t, err, "did not expect %q to parse, got %+v", tt.input, m)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestParse_RenderWithoutCapturesNeverFails(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"FOO = /hello/foo/bar",
		"DB_{field}=secret/app/creds/{field}",
		"{a}-{b}=x/{b}.{a} | cat",
	}
	for _, in := range inputs {
		m, err := Parse(in)
		require.NoError(t, err)
		assert.NotPanics(t, func() {
			_ = m.EnvVar.Render(nil)
			_ = m.Key.Render(template.Captures{})
		})
	}
	m, err := Parse("DB_{field}=secret/app/{field}")
	require.NoError(t, err)
	assert.Equal(t, "DB_", m.EnvVar.Render(nil))
}

func TestParse_LegacyScheme(t *testing.T) {
	t.Parallel()

	m, err := Parse("DB_PASS = kv2://app/db/password | tr -d x")
	require.NoError(t, err)
	assert.Equal(t, address.SchemeKV2, m.Scheme)
	assert.Equal(t, "app/db", m.Path)
	assert.True(t, m.SingleKey())
	assert.Equal(t, []string{"tr -d x"}, m.Filters)

	_, err = Parse("X = cubbyhole://token")
	assert.ErrorIs(t, err, ErrMissingPath)
}

func TestSecretMapping_EnvVarForKey(t *testing.T) {
	t.Parallel()

	m, err := Parse("DB_{field}=secret/app/creds/{field}")
	require.NoError(t, err)

	name, ok := m.EnvVarForKey("db_user")
	require.True(t, ok)
	assert.Equal(t, "DB_db_user", name)

	m, err = Parse("APP_{name}=secret/app/{name}_key")
	require.NoError(t, err)
	_, ok = m.EnvVarForKey("unrelated")
	assert.False(t, ok)
	name, ok = m.EnvVarForKey("stripe_key")
	require.True(t, ok)
	assert.Equal(t, "APP_stripe", name)
}

func TestParseAll_ReportsEveryError(t *testing.T) {
	t.Parallel()

	_, err := ParseAll([]string{"FOO", "OK=/a/b", "BAR = /a/b |"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingEquals))
	assert.True(t, errors.Is(err, ErrEmptyFilter))
	assert.Contains(t, err.Error(), "2 secret mappings are invalid")

	mappings, err := ParseAll([]string{"A=/x/a", "B=/x/b"})
	require.NoError(t, err)
	assert.Len(t, mappings, 2)
}
