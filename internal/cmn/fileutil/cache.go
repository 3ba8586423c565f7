package fileutil

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CacheMetrics exposes cache occupancy to the metrics collector.
type CacheMetrics interface {
	Size() int
	Name() string
}

// entry holds cached data alongside file metadata for staleness detection.
type entry[T any] struct {
	data    T
	size    int64
	modTime int64
}

// Cache keeps parsed file contents keyed by path. An entry is served only
// while the file on disk still has the size and modification time observed
// when it was stored.
type Cache[T any] struct {
	name string
	lru  *expirable.LRU[string, entry[T]]
}

var _ CacheMetrics = (*Cache[any])(nil)

// NewCache creates a cache with the given capacity and time-to-live.
// A capacity of 0 means unlimited size.
func NewCache[T any](name string, capacity int, ttl time.Duration) *Cache[T] {
	return &Cache[T]{
		name: name,
		lru:  expirable.NewLRU[string, entry[T]](capacity, nil, ttl),
	}
}

func (c *Cache[T]) Size() int {
	return c.lru.Len()
}

func (c *Cache[T]) Name() string {
	return c.name
}

// Store adds or updates an item using the metadata of fi.
func (c *Cache[T]) Store(path string, data T, fi os.FileInfo) {
	c.lru.Add(path, entry[T]{
		data:    data,
		size:    fi.Size(),
		modTime: fi.ModTime().UnixNano(),
	})
}

// Invalidate removes an item from the cache.
func (c *Cache[T]) Invalidate(path string) {
	c.lru.Remove(path)
}

// Load returns the cached item without checking the file.
func (c *Cache[T]) Load(path string) (T, bool) {
	e, ok := c.lru.Get(path)
	if !ok {
		var zero T
		return zero, false
	}
	return e.data, true
}

// LoadLatest returns the cached item, calling loader when the entry is
// missing or stale. Stat errors, including a missing file, are returned.
func (c *Cache[T]) LoadLatest(path string, loader func() (T, error)) (T, error) {
	stale, fi, err := c.IsStale(path)
	if err != nil {
		var zero T
		return zero, err
	}
	if !stale {
		if e, ok := c.lru.Get(path); ok {
			return e.data, nil
		}
	}
	data, err := loader()
	if err != nil {
		var zero T
		return zero, err
	}
	c.Store(path, data, fi)
	return data, nil
}

// IsStale compares the cached metadata with the file on disk.
func (c *Cache[T]) IsStale(path string) (bool, os.FileInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return true, nil, fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	e, ok := c.lru.Peek(path)
	if !ok {
		return true, fi, nil
	}
	return e.modTime != fi.ModTime().UnixNano() || e.size != fi.Size(), fi, nil
}
