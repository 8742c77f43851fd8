package commands

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/vault-inject/internal/address"
	"github.com/systmms/vault-inject/internal/secretstore"
)

func TestGetCommand(t *testing.T) {
	isolateEnv(t)
	_, srv := newFakeVault(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"mount routed", []string{"secret/app/creds/db_user"}, "alice\n"},
		{"legacy scheme", []string{"kv2://app/creds/db_pass"}, "s3cr3t\n"},
		{"cubbyhole", []string{"cubbyhole/mine/pin"}, "1234\n"},
		{"filtered", []string{"kv2://app/api/key", "--filter", "base64 -d", "--filter", "tr a-z A-Z"}, "API-KEY\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append(append(loginArgs(srv), "--no-cache"), tt.args...)
			out, err := execute(NewGetCommand(testConfig(t)), args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestGetCommand_JSON(t *testing.T) {
	isolateEnv(t)
	_, srv := newFakeVault(t)

	args := append(loginArgs(srv), "--no-cache", "--json", "secret/app/creds/db_user")
	out, err := execute(NewGetCommand(testConfig(t)), args...)
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "alice", got["value"])
	assert.Equal(t, "secret", got["mount"])
	assert.Equal(t, "app/creds", got["path"])
	assert.Equal(t, "kv2", got["storage"])
	assert.Equal(t, "db_user", got["key"])
}

func TestGetCommand_Errors(t *testing.T) {
	isolateEnv(t)
	fv, srv := newFakeVault(t)

	t.Run("bad address is rejected offline", func(t *testing.T) {
		_, err := execute(NewGetCommand(testConfig(t)), append(loginArgs(srv), "--no-cache", "secret/app/")...)
		assert.ErrorIs(t, err, address.ErrTrailingSlash)
		requests, _ := fv.counts()
		assert.Zero(t, requests)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := execute(NewGetCommand(testConfig(t)), append(loginArgs(srv), "--no-cache", "secret/app/creds/nope")...)
		assert.ErrorIs(t, err, secretstore.ErrKeyNotFound)
	})

	t.Run("unsupported mount", func(t *testing.T) {
		_, err := execute(NewGetCommand(testConfig(t)), append(loginArgs(srv), "--no-cache", "pki/issue/web")...)
		assert.ErrorIs(t, err, secretstore.ErrUnsupported)
	})
}

func TestMountsCommand(t *testing.T) {
	isolateEnv(t)
	_, srv := newFakeVault(t)

	out, err := execute(NewMountsCommand(testConfig(t)), append(loginArgs(srv), "--no-cache")...)
	require.NoError(t, err)
	assert.Contains(t, out, "MOUNT")
	assert.Regexp(t, `secret/\s+kv2`, out)
	assert.Regexp(t, `cubbyhole/\s+cubbyhole`, out)
	assert.NotContains(t, out, "pki")
}
