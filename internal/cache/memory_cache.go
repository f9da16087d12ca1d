package cache

import (
	"context"
	"sync"
	"time"

	"billbook/backend/internal/domain"
)

type memoryEntry struct {
	value     domain.TotalResponse
	expiresAt time.Time
}

// MemoryTotalsCache is a process-local TotalsCache.
type MemoryTotalsCache struct {
	mu         sync.Mutex
	generation int64
	entries    map[string]memoryEntry
}

func NewMemoryTotalsCache() *MemoryTotalsCache {
	return &MemoryTotalsCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryTotalsCache) Generation(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation, nil
}

func (c *MemoryTotalsCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	clear(c.entries)
	return nil
}

func (c *MemoryTotalsCache) Get(_ context.Context, key string) (*domain.TotalResponse, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	value := entry.value
	return &value, true, nil
}

func (c *MemoryTotalsCache) Set(_ context.Context, key string, value *domain.TotalResponse, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{value: *value, expiresAt: time.Now().Add(ttl)}
	return nil
}
