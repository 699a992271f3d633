package kvstore

import (
	"context"
	"maps"
	"sync"
)

// MemoryStore keeps values in process memory. Contents are lost on exit.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// Compile-time checks to ensure MemoryStore implements Store and BatchSetter
var (
	_ Store       = (*MemoryStore)(nil)
	_ BatchSetter = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get returns the value for key or ErrNotFound.
func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

// Set stores value under key.
func (m *MemoryStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}

// SetMany stores all values under a single lock.
func (m *MemoryStore) SetMany(ctx context.Context, values map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	maps.Copy(m.values, values)
	m.mu.Unlock()
	return nil
}
