// Package memory provides the in-process backing store used when no
// persistent store is usable.
package memory

import (
	"sort"
	"sync"
)

// Store is a map-backed backing store. Its contents live only as long as
// the process.
type Store struct {
	mu    sync.RWMutex
	items map[string]string
}

// New creates an empty memory store
func New() *Store {
	return &Store{
		items: make(map[string]string),
	}
}

// GetItem returns the value stored under key
func (s *Store) GetItem(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.items[key]
	return v, ok, nil
}

// SetItem stores value under key
func (s *Store) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = value
	return nil
}

// RemoveItem deletes key
func (s *Store) RemoveItem(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	return nil
}

// Clear deletes every key
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]string)
	return nil
}

// Keys returns every key in lexical order
func (s *Store) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of stored keys
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
