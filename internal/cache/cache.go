package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache provides an in-memory cache with expiration. A background janitor removes
// expired entries every cleanup interval; it stops once the cache is garbage collected.
type Cache[V any] struct {
	store *gocache.Cache
}

// NewCache creates a cache whose entries live for ttl and are swept every ttl
func NewCache[V any](ttl time.Duration) *Cache[V] {
	return NewCacheWithCleanup[V](ttl, ttl)
}

// NewCacheWithCleanup creates a cache whose entries live for ttl, with expired
// entries swept every cleanupInterval. A non-positive interval disables the janitor.
func NewCacheWithCleanup[V any](ttl, cleanupInterval time.Duration) *Cache[V] {
	return &Cache[V]{store: gocache.New(ttl, cleanupInterval)}
}

// Get retrieves a value from the cache
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	val, found := c.store.Get(key)
	if !found {
		return zero, false
	}
	v, ok := val.(V)
	if !ok {
		return zero, false
	}
	return v, true
}

// Set stores a value in the cache under the default expiration
func (c *Cache[V]) Set(key string, val V) {
	c.store.SetDefault(key, val)
}

// Delete removes a value from the cache
func (c *Cache[V]) Delete(key string) {
	c.store.Delete(key)
}

// Len returns the number of stored entries, including expired ones the janitor has not swept yet
func (c *Cache[V]) Len() int {
	return c.store.ItemCount()
}
