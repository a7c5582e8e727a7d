// Package storage provides ready-made persistence adapters: an
// in-process map for tests and ephemeral stores, a JSON file with atomic
// writes and optional change watching, and a SQLite database.
package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/atomic-state/atomicstate"
)

// Memory is an in-process adapter backed by a map. Values survive store
// restarts only as long as the adapter itself is shared between them.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ atomicstate.PersistenceAdapter = (*Memory)(nil)

// NewMemory creates an empty in-memory adapter.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// GetItem returns the stored copy for key, or found=false.
func (m *Memory) GetItem(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

// SetItem stores a copy of value under key.
func (m *Memory) SetItem(_ context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	m.data[key] = stored
	m.mu.Unlock()
	return nil
}

// RemoveItem deletes key. Removing a missing key is not an error.
func (m *Memory) RemoveItem(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Keys returns the stored keys in sorted order.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		keys = append(keys, key)
	}
	m.mu.RUnlock()

	sort.Strings(keys)
	return keys
}
