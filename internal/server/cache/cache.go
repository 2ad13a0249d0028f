// Package cache memoizes read API responses. Entries are keyed by kind and
// module so a refresh can drop exactly what it made stale.
package cache

import (
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const sep = "|"

// AnyModule marks entries that aggregate every module.
const AnyModule = "*"

// Cache wraps go-cache with module-scoped invalidation.
type Cache struct {
	store *gocache.Cache
}

// New creates a cache whose entries live for ttl.
func New(ttl, cleanupInterval time.Duration) *Cache {
	return &Cache{
		store: gocache.New(ttl, cleanupInterval),
	}
}

// Key builds a cache key for kind scoped to module. Use AnyModule for
// entries that span modules.
func Key(kind, module string, parts ...string) string {
	return strings.Join(append([]string{kind, module}, parts...), sep)
}

// Get retrieves a value from the cache.
func (c *Cache) Get(key string) (any, bool) {
	return c.store.Get(key)
}

// Set stores a value with the default TTL.
func (c *Cache) Set(key string, value any) {
	c.store.Set(key, value, gocache.DefaultExpiration)
}

// GetOrLoad returns the cached value for key, calling load on a miss.
// Load errors are returned and not cached.
func (c *Cache) GetOrLoad(key string, load func() (any, error)) (any, error) {
	if v, ok := c.store.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return nil, err
	}
	c.store.Set(key, v, gocache.DefaultExpiration)
	return v, nil
}

// InvalidateModule drops every entry scoped to module and every entry
// spanning all modules.
func (c *Cache) InvalidateModule(module string) int {
	n := 0
	for key := range c.store.Items() {
		parts := strings.SplitN(key, sep, 3)
		if len(parts) < 2 {
			continue
		}
		if parts[1] == module || parts[1] == AnyModule || module == AnyModule {
			c.store.Delete(key)
			n++
		}
	}
	return n
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.store.Flush()
}

// Stats is a snapshot of the cache.
type Stats struct {
	ItemCount int `json:"item_count"`
}

// Stats returns current cache statistics.
func (c *Cache) Stats() Stats {
	return Stats{ItemCount: c.store.ItemCount()}
}
