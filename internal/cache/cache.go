package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/dennisdiepolder/monti/agentkpi/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// Key identifies one cached value. Signature changes whenever the inputs
// behind the value change, so stale entries are never returned.
type Key struct {
	Kind      string
	Selector  string
	Signature string
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s", k.Kind, k.Selector, k.Signature)
}

type entry[V any] struct {
	value     V
	expiresAt time.Time // zero means no expiry
}

// Cache memoizes loads keyed by Key. Concurrent loads of the same key run
// once and share the result.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[Key]entry[V]
	ttl     time.Duration
	group   singleflight.Group
	now     func() time.Time
	metrics *metrics.Metrics
}

// New creates a cache. A ttl of 0 keeps entries until invalidated.
func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		entries: make(map[Key]entry[V]),
		ttl:     ttl,
		now:     time.Now,
		metrics: metrics.Get(),
	}
}

// Get returns the cached value for key, calling load on a miss
func (c *Cache[V]) Get(key Key, load func() (V, error)) (V, error) {
	if v, ok := c.lookup(key); ok {
		c.metrics.RecordCacheHit()
		return v, nil
	}
	c.metrics.RecordCacheMiss()

	res, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		v, err := load()
		if err != nil {
			return v, err
		}
		c.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Set stores a value, replacing entries for the same kind and selector
// that were built from older inputs.
func (c *Cache[V]) Set(key Key, v V) {
	e := entry[V]{value: v}
	if c.ttl > 0 {
		e.expiresAt = c.now().Add(c.ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.Kind == key.Kind && k.Selector == key.Selector && k.Signature != key.Signature {
			delete(c.entries, k)
		}
	}
	c.entries[key] = e
}

func (c *Cache[V]) lookup(key Key) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		var zero V
		return zero, false
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return e.value, true
}

// Invalidate drops every entry of a kind and selector. An empty selector
// drops the whole kind.
func (c *Cache[V]) Invalidate(kind, selector string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.Kind == kind && (selector == "" || k.Selector == selector) {
			delete(c.entries, k)
		}
	}
	c.metrics.RecordCacheInvalidation()
}

// Purge drops every entry
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	c.entries = make(map[Key]entry[V])
	c.mu.Unlock()
	c.metrics.RecordCacheInvalidation()
}

// Len returns the number of stored entries, expired ones included
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
