// Package cache persists the last Vault token between runs. It holds a single
// record with at most one token; it is not a general key/value store.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// EnvCacheDir overrides the directory the file store writes to.
const EnvCacheDir = "VAULT_INJECT_CACHE_DIR"

const (
	appDir   = "vault_inject"
	fileName = "cache"
)

// Record is the persisted cache content.
type Record struct {
	LastToken string `json:"last_token,omitempty"`
}

// Store loads and saves the cache record. Load never fails: a missing or
// unreadable record is reported as the zero Record.
type Store interface {
	Load() Record
	Save(rec Record) error
	Clear() error
	Location() string
}

// FileStore keeps the record as JSON in a per-user cache directory.
type FileStore struct {
	path string
}

// NewFileStore returns a store at dir/cache. An empty dir selects the
// platform cache directory, or $VAULT_INJECT_CACHE_DIR when set.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = os.Getenv(EnvCacheDir)
	}
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate user cache directory: %w", err)
		}
		dir = filepath.Join(base, appDir)
	}
	return &FileStore{path: filepath.Join(dir, fileName)}, nil
}

// Location returns the cache file path.
func (s *FileStore) Location() string {
	return s.path
}

// Load reads the record, returning the zero Record on any error.
func (s *FileStore) Load() Record {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Record{}
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}
	}
	return rec
}

// Save writes the record atomically: the data is written to a temporary file
// in the same directory, synced, and renamed over the previous record.
func (s *FileStore) Save(rec Record) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode cache record: %w", err)
	}

	tmp, err := os.CreateTemp(dir, fileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary cache file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close cache file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("failed to set cache file permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}

// Clear removes the cache file. A missing file is not an error.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove cache file: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
