// Package cache provides the bounded key/value store shared by skills
package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/harun/skillhost/internal/observability"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSize is used when a non-positive size is requested
const DefaultSize = 1024

type entry struct {
	value     any
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Cache is a size-bounded LRU with optional per-entry expiry. It is safe for
// concurrent use.
type Cache struct {
	mu         sync.Mutex
	items      *lru.Cache[string, entry]
	defaultTTL time.Duration
	now        func() time.Time
}

// New creates a cache holding at most size entries. A zero defaultTTL keeps
// entries until they are evicted.
func New(size int, defaultTTL time.Duration) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	items, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	return &Cache{
		items:      items,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}, nil
}

// Set stores value under key with the default TTL
func (c *Cache) Set(key string, value any) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores value under key. A non-positive ttl never expires.
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Add(key, e)
}

// Get returns the live value stored under key
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items.Get(key)
	if ok && e.expired(c.now()) {
		c.items.Remove(key)
		ok = false
	}
	if !ok {
		observability.RecordCacheMiss()
		return nil, false
	}
	observability.RecordCacheHit()
	return e.value, true
}

// Delete removes key and reports whether it was present
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Remove(key)
}

// Len returns the number of stored entries, expired ones included until they
// are next touched
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Len()
}

// Purge removes every entry
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Purge()
}
