package cache

import (
	"sync"
	"time"
)

// Options configures a cache
type Options struct {
	// TTL is the default expiration; zero keeps items until evicted
	TTL time.Duration
	// MaxSize bounds the number of items; zero is unbounded
	MaxSize int
	// PurgeWindow is how often expired items are removed; zero disables the purge loop
	PurgeWindow time.Duration
}

type entry[V any] struct {
	value   V
	expires time.Time
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// Cache is a concurrency-safe in-memory map with per-item expiry
type Cache[V any] struct {
	mu      sync.RWMutex
	items   map[string]entry[V]
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a cache and starts its purge loop when opts.PurgeWindow is set
func New[V any](opts Options) *Cache[V] {
	c := &Cache[V]{
		items:   make(map[string]entry[V]),
		ttl:     opts.TTL,
		maxSize: opts.MaxSize,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if opts.PurgeWindow > 0 {
		go c.purgeLoop(opts.PurgeWindow)
	}
	return c
}

// Close stops the purge loop
func (c *Cache[V]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Set stores value under key with the default TTL
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithExpiration(key, value, c.ttl)
}

// SetWithExpiration stores value under key for d; d <= 0 never expires
func (c *Cache[V]) SetWithExpiration(key string, value V, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, value, d)
}

// SetIfAbsent stores value unless a live item already exists under key, and reports whether it stored
func (c *Cache[V]) SetIfAbsent(key string, value V, d time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok && !e.expired(c.now()) {
		return false
	}
	c.put(key, value, d)
	return true
}

// Get returns the live value under key
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[key]
	if !ok || e.expired(c.now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Delete removes key
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Count returns the number of stored items, expired ones included until purged
func (c *Cache[V]) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// put requires the write lock
func (c *Cache[V]) put(key string, value V, d time.Duration) {
	now := c.now()
	if _, exists := c.items[key]; !exists && c.maxSize > 0 && len(c.items) >= c.maxSize {
		c.purge(now)
		if len(c.items) >= c.maxSize {
			c.evict()
		}
	}

	e := entry[V]{value: value}
	if d > 0 {
		e.expires = now.Add(d)
	}
	c.items[key] = e
}

func (c *Cache[V]) purgeLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.purge(c.now())
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}

// purge requires the write lock
func (c *Cache[V]) purge(now time.Time) {
	for k, e := range c.items {
		if e.expired(now) {
			delete(c.items, k)
		}
	}
}

// evict drops the item closest to expiry; items without expiry go first. Requires the write lock.
func (c *Cache[V]) evict() {
	var (
		victim  string
		soonest time.Time
		found   bool
	)
	for k, e := range c.items {
		if !found || e.expires.Before(soonest) {
			victim, soonest, found = k, e.expires, true
		}
	}
	if found {
		delete(c.items, victim)
	}
}
