package cache

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "vault-inject"
	keyringAccount = "last_token"
)

// KeyringStore keeps the token in the OS keychain (macOS Keychain, Secret
// Service on Linux, Windows Credential Manager).
type KeyringStore struct {
	service string
	account string
}

// NewKeyringStore returns a store scoped to the current user's keychain.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{service: keyringService, account: keyringAccount}
}

// Location describes where the token is stored.
func (s *KeyringStore) Location() string {
	return fmt.Sprintf("keyring:%s/%s", s.service, s.account)
}

// Load reads the token, returning the zero Record if it is missing or the
// keychain is unavailable.
func (s *KeyringStore) Load() Record {
	token, err := keyring.Get(s.service, s.account)
	if err != nil {
		return Record{}
	}
	return Record{LastToken: token}
}

// Save stores the token, replacing any previous one. An empty token clears
// the entry.
func (s *KeyringStore) Save(rec Record) error {
	if rec.LastToken == "" {
		return s.Clear()
	}
	if err := keyring.Set(s.service, s.account, rec.LastToken); err != nil {
		return fmt.Errorf("failed to store token in keyring: %w", err)
	}
	return nil
}

// Clear deletes the stored token.
func (s *KeyringStore) Clear() error {
	if err := keyring.Delete(s.service, s.account); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to remove token from keyring: %w", err)
	}
	return nil
}

var _ Store = (*KeyringStore)(nil)
