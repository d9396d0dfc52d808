package cache

import (
	"context"
	"slices"
	"sync"
)

// MemoryStorage keeps caches in process memory.
type MemoryStorage struct {
	mu     sync.Mutex
	caches map[string]*memoryCache
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{caches: map[string]*memoryCache{}}
}

func (m *MemoryStorage) Open(_ context.Context, name string) (Cache, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.caches[name]
	if !ok {
		c = &memoryCache{entries: map[string]*Snapshot{}}
		m.caches[name] = c
	}
	return c, nil
}

func (m *MemoryStorage) Names(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.caches))
	for name := range m.caches {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (m *MemoryStorage) Delete(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.caches[name]
	delete(m.caches, name)
	return ok, nil
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]*Snapshot
}

func (c *memoryCache) Get(_ context.Context, key string) (*Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return s, nil
}

func (c *memoryCache) Put(_ context.Context, s *Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[s.Key] = s
	return nil
}

func (c *memoryCache) Keys(context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}
