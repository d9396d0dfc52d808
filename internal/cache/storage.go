package cache

import (
	"context"
	"errors"
)

// ErrCacheMiss is returned by Cache.Get when the key is not stored.
var ErrCacheMiss = errors.New("cache miss")

// Storage holds named caches.
type Storage interface {
	// Open returns the cache called name, creating it if needed.
	Open(ctx context.Context, name string) (Cache, error)
	// Names lists existing caches.
	Names(ctx context.Context) ([]string, error)
	// Delete removes a cache and everything in it. It reports whether the
	// cache existed.
	Delete(ctx context.Context, name string) (bool, error)
}

// Cache maps request keys to snapshots.
type Cache interface {
	Get(ctx context.Context, key string) (*Snapshot, error)
	Put(ctx context.Context, s *Snapshot) error
	Keys(ctx context.Context) ([]string, error)
}
