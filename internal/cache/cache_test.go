package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestFileStoreMissingFile(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Record{}, store.Load())
}

func TestFileStoreCorruptFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cache"), []byte("{not json"), 0600))

	store, err := NewFileStore(dir)
	require.NoError(t, err)
	assert.Equal(t, Record{}, store.Load())
}

func TestFileStoreSaveCreatesDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "vault_inject")
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(Record{LastToken: "s.first"}))
	assert.Equal(t, "s.first", store.Load().LastToken)

	info, err := os.Stat(store.Location())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// Single slot: a second save overwrites.
	require.NoError(t, store.Save(Record{LastToken: "s.second"}))
	assert.Equal(t, "s.second", store.Load().LastToken)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestFileStoreClear(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Clear(), "clearing a missing cache is not an error")
	require.NoError(t, store.Save(Record{LastToken: "s.token"}))
	require.NoError(t, store.Clear())
	assert.Equal(t, Record{}, store.Load())
}

func TestFileStoreEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvCacheDir, dir)

	store, err := NewFileStore("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cache"), store.Location())
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	store := NewKeyringStore()
	assert.Equal(t, Record{}, store.Load())

	require.NoError(t, store.Save(Record{LastToken: "s.keyring"}))
	assert.Equal(t, "s.keyring", store.Load().LastToken)

	require.NoError(t, store.Save(Record{}))
	assert.Equal(t, Record{}, store.Load())

	require.NoError(t, store.Clear())
	assert.Contains(t, store.Location(), "vault-inject")
}
