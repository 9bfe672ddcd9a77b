package speechcache

import (
	"context"
	"sync"
)

// MemoryIndex provides an in-memory implementation of the Index interface.
// It is thread-safe and suitable for single-instance deployments and tests.
// For shared caches across replicas, use RedisIndex.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryIndex creates a new in-memory cache index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		entries: make(map[string]*Entry),
	}
}

// Put inserts or replaces an entry.
func (m *MemoryIndex) Put(_ context.Context, entry *Entry) error {
	if entry == nil || entry.Key == "" {
		return ErrInvalidKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Store a copy to prevent external mutations.
	cp := *entry
	m.entries[entry.Key] = &cp
	return nil
}

// Get retrieves an entry by key.
func (m *MemoryIndex) Get(_ context.Context, key string) (*Entry, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.entries[key]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *entry
	return &cp, nil
}

// Delete removes an entry.
func (m *MemoryIndex) Delete(_ context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// All returns every entry.
func (m *MemoryIndex) All(_ context.Context) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Entry, 0, len(m.entries))
	for _, entry := range m.entries {
		cp := *entry
		out = append(out, &cp)
	}
	return out, nil
}

// Len returns the number of entries.
func (m *MemoryIndex) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Close releases index resources.
func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*Entry)
	return nil
}
