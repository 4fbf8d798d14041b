// Package memory provides in-process store implementations for embedded use
// of the cart core and for tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/utafrali/storefront/internal/domain"
)

// GuestStore implements repository.GuestStore in memory. Values are kept
// JSON-encoded, matching what a browser keeps in local storage.
type GuestStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewGuestStore returns an empty store.
func NewGuestStore() *GuestStore {
	return &GuestStore{values: make(map[string][]byte)}
}

// Get returns the items stored under key.
func (s *GuestStore) Get(_ context.Context, key string) ([]domain.LineItem, bool, error) {
	s.mu.RLock()
	data, ok := s.values[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	var items []domain.LineItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, false, fmt.Errorf("unmarshal guest cart: %w", err)
	}
	return domain.CloneItems(items), true, nil
}

// Set stores items under key.
func (s *GuestStore) Set(_ context.Context, key string, items []domain.LineItem) error {
	data, err := json.Marshal(domain.CloneItems(items))
	if err != nil {
		return fmt.Errorf("marshal guest cart: %w", err)
	}

	s.mu.Lock()
	s.values[key] = data
	s.mu.Unlock()
	return nil
}

// Remove deletes key.
func (s *GuestStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()
	return nil
}

// SetRaw stores an arbitrary encoded value under key.
func (s *GuestStore) SetRaw(key string, data []byte) {
	s.mu.Lock()
	s.values[key] = data
	s.mu.Unlock()
}

// Len returns the number of stored keys.
func (s *GuestStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
