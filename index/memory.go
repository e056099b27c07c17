package index

import (
	"context"
	"sync"

	assetcache "github.com/reducekit/asset-cache"
)

// Memory is an in-process Repository backed by a map.
type Memory struct {
	mu      sync.RWMutex
	entries map[assetcache.Key]string
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{entries: make(map[assetcache.Key]string)}
}

// Add records (or overwrites) the canonical URL for a key.
func (m *Memory) Add(_ context.Context, key assetcache.Key, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = url
	return nil
}

// Remove deletes the entry for a key.
func (m *Memory) Remove(_ context.Context, key assetcache.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Lookup returns the canonical URL for a key.
func (m *Memory) Lookup(_ context.Context, key assetcache.Key) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	url, ok := m.entries[key]
	return url, ok, nil
}

// All returns a snapshot of every entry.
func (m *Memory) All(_ context.Context) (map[assetcache.Key]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[assetcache.Key]string, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out, nil
}

// Len returns the number of entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Compile-time interface check
var _ Repository = (*Memory)(nil)
