// Package cache implements a small TTL cache for upstream list responses.
//
// The cache is a pure performance optimisation: disabling it must not change
// any observable response, only latency. Entries are grouped into resource
// families (one per entity type) so a mutation can drop everything that might
// now be stale.
package cache

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is the window during which a stored list response is served
// without a round trip.
const DefaultTTL = 30 * time.Second

type entry struct {
	family   string
	value    any
	metadata map[string]any
	storedAt time.Time
}

// Cache is a mutex-guarded TTL store. Handlers may run concurrently, so all
// access goes through the lock even though the original deployment model is
// a single event loop.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry
	now     func() time.Time // overridable in tests
}

// New creates a cache with the given TTL. A non-positive TTL disables the
// cache entirely: Get always misses and Set is a no-op.
func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// SetTTL adjusts the TTL at runtime (config hot-reload). Existing entries
// are judged against the new value on their next lookup.
func (c *Cache) SetTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttl = ttl
}

// Get returns the stored value and metadata when the entry exists and has
// not expired. Expired entries are evicted on lookup.
func (c *Cache) Get(key string) (any, map[string]any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ttl <= 0 {
		return nil, nil, false
	}
	e, ok := c.entries[key]
	if !ok {
		return nil, nil, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, key)
		return nil, nil, false
	}
	return e.value, e.metadata, true
}

// Set stores value under key, tagged with its resource family. Any existing
// entry for the key is overwritten.
func (c *Cache) Set(key, family string, value any, metadata map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ttl <= 0 {
		return
	}
	c.entries[key] = entry{
		family:   family,
		value:    value,
		metadata: metadata,
		storedAt: c.now(),
	}
}

// Invalidate drops every entry belonging to the given resource family.
func (c *Cache) Invalidate(family string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if e.family == family {
			delete(c.entries, k)
		}
	}
}

// InvalidateAll drops every entry. This is the baseline post-mutation
// behaviour: precision is traded for never serving stale data.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Key builds a deterministic cache key from a list query. Filter keys are
// sorted so that equivalent queries passed in different argument order
// collide on the same key.
func Key(resource string, offset, count int, sortField string, filters map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|offset=%d|count=%d|sort=%s", resource, offset, count, sortField)
	if len(filters) > 0 {
		keys := make([]string, 0, len(filters))
		for k := range filters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "|filter[%s]=%s", k, filters[k])
		}
	}
	return b.String()
}
