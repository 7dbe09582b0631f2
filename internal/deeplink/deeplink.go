// Package deeplink carries the mobile flow's OAuth redirect from the
// OS deep-link dispatch back into the application. Registration of the
// custom URI scheme with the OS is outside this package; it only stores
// the last delivered URL and extracts the callback payload.
package deeplink

import (
	"errors"
	"fmt"
	"net/url"
	"sync"

	"budgetview-go/internal/auth"
)

// Store holds the most recently delivered deep-link URL. Like the
// verifier slot it is a single slot: a new deep link replaces the old
// one. Construct it once and inject it where needed.
type Store struct {
	mu   sync.Mutex
	last string
}

// NewStore creates an empty deep-link store.
func NewStore() *Store {
	return &Store{}
}

// Set records url as the last received deep link.
func (s *Store) Set(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = url
}

// Last returns the stored deep link, if any.
func (s *Store) Last() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.last != ""
}

// Clear empties the slot.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = ""
}

// Callback is the payload of an OAuth deep-link redirect.
type Callback struct {
	Code  string
	State string
}

// ParseCallback extracts the authorization code and state from a
// custom-scheme redirect such as
// ynab4viewer://oauth/callback?code=...&state=... A provider error
// parameter becomes an auth.ProviderError.
func ParseCallback(rawURL string) (*Callback, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse deep link: %w", err)
	}

	expected, err := url.Parse(auth.MobileRedirectURI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redirect URI: %w", err)
	}
	if u.Scheme != expected.Scheme {
		return nil, fmt.Errorf("unexpected deep link scheme %q", u.Scheme)
	}

	q := u.Query()
	if errCode := q.Get("error"); errCode != "" {
		return nil, &auth.ProviderError{Code: errCode}
	}

	code := q.Get("code")
	if code == "" {
		return nil, errors.New("deep link carries no authorization code")
	}

	return &Callback{Code: code, State: q.Get("state")}, nil
}
