package auth

import "sync"

// VerifierStore holds the single in-flight PKCE verifier between the
// start of an authorization flow and the token exchange. At most one
// authorization attempt may be live per process: starting a second flow
// overwrites the slot and silently invalidates the first attempt. That
// is the documented concurrency contract, not a race.
//
// Both methods return errors so that substitutable stores may fail; the
// in-memory implementation never does.
type VerifierStore interface {
	// Set unconditionally overwrites any previously stored verifier.
	Set(verifier string) error

	// Take atomically reads and clears the stored verifier. It returns
	// the empty string when the slot is empty.
	Take() (string, error)
}

// InMemoryVerifierStore is the process-lifetime, single-slot
// implementation of VerifierStore. Critical sections are single
// operations; the lock is never held across I/O.
type InMemoryVerifierStore struct {
	mu       sync.Mutex
	verifier string
}

// NewInMemoryVerifierStore creates an empty verifier slot.
func NewInMemoryVerifierStore() *InMemoryVerifierStore {
	return &InMemoryVerifierStore{}
}

// Set stores the verifier, replacing whatever was there.
func (s *InMemoryVerifierStore) Set(verifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifier = verifier
	return nil
}

// Take reads and clears the slot in one step.
func (s *InMemoryVerifierStore) Take() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	verifier := s.verifier
	s.verifier = ""
	return verifier, nil
}
