package secure

import (
	"sync"

	"github.com/awnumar/memguard"
)

// SecureBuffer holds one secret in an encrypted memguard enclave.
type SecureBuffer struct {
	enclave   *memguard.Enclave
	mu        sync.RWMutex
	destroyed bool
}

// NewSecureBuffer seals data into an enclave. memguard wipes data after
// copying it, so the caller's slice must not be reused.
func NewSecureBuffer(data []byte) (*SecureBuffer, error) {
	// memguard returns a nil enclave for empty input; Open handles that.
	return &SecureBuffer{enclave: memguard.NewEnclave(data)}, nil
}

// Open decrypts the buffer. The caller must Destroy the returned
// LockedBuffer when done with the plaintext.
func (s *SecureBuffer) Open() (*memguard.LockedBuffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.destroyed || s.enclave == nil {
		return memguard.NewBuffer(0), nil
	}
	return s.enclave.Open()
}

// Destroy drops the enclave. Idempotent; Open returns an empty buffer
// afterwards.
func (s *SecureBuffer) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enclave = nil
	s.destroyed = true
}
