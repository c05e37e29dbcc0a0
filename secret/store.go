package secret

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrSecretNotFound = fmt.Errorf("secret not found")
	ErrEmptySecret    = fmt.Errorf("secret key and value must not be empty")
)

// Store holds API secrets. Implementations must be safe for concurrent use.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error

	// IsReady reports whether the store holds at least one secret.
	IsReady() bool
	Close() error
}

type InMemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{secrets: make(map[string]string)}
}

// NewTokenStore returns a store that accepts each of the given API tokens.
// Several tokens let a key be rotated without downtime.
func NewTokenStore(tokens ...string) (*InMemoryStore, error) {
	store := NewInMemoryStore()
	for _, token := range tokens {
		if err := store.Set(token, token); err != nil {
			return nil, fmt.Errorf("invalid API token: %w", err)
		}
	}
	return store, nil
}

// ParseTokens splits a comma-separated token list, dropping blanks.
func ParseTokens(list string) []string {
	var tokens []string
	for token := range strings.SplitSeq(list, ",") {
		if token = strings.TrimSpace(token); token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// Get compares key against every stored key in constant time per key.
func (s *InMemoryStore) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := ""
	for k, v := range s.secrets {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			found = v
		}
	}
	if found == "" {
		return "", ErrSecretNotFound
	}
	return found, nil
}

func (s *InMemoryStore) Set(key, value string) error {
	if key == "" || value == "" {
		return ErrEmptySecret
	}

	s.mu.Lock()
	s.secrets[key] = value
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.secrets) > 0
}

// Close forgets every secret.
func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	clear(s.secrets)
	s.mu.Unlock()
	return nil
}
