// Package trust keeps the process-lifetime record of operator-approved keys.
//
// Trust is deliberately not persisted: a confirmed key remains trusted until
// the process exits and there is no revocation. Matching the IDE-side plugin,
// a restart of the host application forgets everything.
package trust

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownKey indicates a fingerprint with no trust record. The caller must
// route the request through operator confirmation instead.
var ErrUnknownKey = errors.New("key has no trust record")

// ErrReplay indicates a nonce that is not strictly greater than the last
// accepted nonce for the key.
var ErrReplay = errors.New("nonce already used")

// Store is an in-memory map from key fingerprint to the highest accepted
// nonce. It is the only state shared across threads without going through the
// dispatcher, so every operation takes the lock for its full duration.
type Store struct {
	mu    sync.RWMutex
	keys  map[string]int64
}

// NewStore creates an empty trust store.
func NewStore() *Store {
	return &Store{
		keys: make(map[string]int64),
	}
}

// Nonce returns the last accepted nonce for a fingerprint, and whether the
// fingerprint has a trust record at all.
func (s *Store) Nonce(fingerprint string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nonce, ok := s.keys[fingerprint]
	return nonce, ok
}

// Trust creates or replaces the trust record for a fingerprint. Only the
// confirmation gate calls this; the command listener never trusts a key on
// its own.
func (s *Store) Trust(fingerprint string, nonce int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keys[fingerprint] = nonce
}

// Accept atomically checks and advances the nonce for an already-trusted
// fingerprint. It fails with ErrUnknownKey when the fingerprint has no
// record, and with ErrReplay when nonce is not strictly greater than the
// last accepted one.
func (s *Store) Accept(fingerprint string, nonce int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.keys[fingerprint]
	if !ok {
		return ErrUnknownKey
	}
	if nonce <= last {
		return fmt.Errorf("%w: nonce %d <= last accepted %d", ErrReplay, nonce, last)
	}

	s.keys[fingerprint] = nonce
	return nil
}

// Len returns the number of trusted keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.keys)
}
