// ABOUTME: In-memory ByteCache used by tests and the console frontend

package attach

import (
	"context"
	"sync"
)

// MemoryCache is a trivial in-process ByteCache with no expiry.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]byte)}
}

// Get returns the cached bytes for a file id, if present.
func (c *MemoryCache) Get(_ context.Context, fileID string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, ok := c.entries[fileID]
	return data, ok, nil
}

// Put stores bytes under a file id.
func (c *MemoryCache) Put(_ context.Context, fileID string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[fileID] = data
	return nil
}
