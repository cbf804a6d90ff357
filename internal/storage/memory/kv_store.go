package memory

import (
	"context"
	"sync"

	"tradetrainer/internal/storage"
)

// KVStore is an in-memory implementation of storage.KVStore.
type KVStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewKVStore creates a new in-memory key/value store.
func NewKVStore() *KVStore {
	return &KVStore{data: make(map[string]string)}
}

// Get returns the value under key. Returns ErrNotFound if absent.
func (s *KVStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

// Set stores value under key.
func (s *KVStore) Set(_ context.Context, key, value string) error {
	if key == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// Delete removes key.
func (s *KVStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Compile-time interface check.
var _ storage.KVStore = (*KVStore)(nil)
