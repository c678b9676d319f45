// Package memcache is a bounded, short-lived, in-process cache keyed by
// category. It only saves round-trips to the backend; the cache store stays
// authoritative.
package memcache

import (
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
)

const (
	DefaultTTL        = 5 * time.Minute
	DefaultMaxEntries = 32
)

// Option mutates cache configuration.
type Option func(*config)

type config struct {
	now func() time.Time
}

// WithClock replaces the wall clock used for entry expiry.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

type entry[V any] struct {
	value   V
	expires time.Time
}

// Cache holds at most maxEntries values, each for ttl.
type Cache[V any] struct {
	mu  sync.Mutex
	lru *lru.Cache
	ttl time.Duration
	now func() time.Time
}

func New[V any](maxEntries int, ttl time.Duration, opts ...Option) *Cache[V] {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	cfg := config{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Cache[V]{
		lru: lru.New(maxEntries),
		ttl: ttl,
		now: cfg.now,
	}
}

func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	raw, ok := c.lru.Get(key)
	if !ok {
		return zero, false
	}

	e := raw.(entry[V])
	if !c.now().Before(e.expires) {
		c.lru.Remove(key)
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Add(key, entry[V]{value: value, expires: c.now().Add(c.ttl)})
}

// SetUntil stores value for ttl or until deadline, whichever comes first.
// An entry whose deadline already passed is not stored.
func (c *Cache[V]) SetUntil(key string, value V, deadline time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	expires := now.Add(c.ttl)
	if deadline.Before(expires) {
		expires = deadline
	}
	if !now.Before(expires) {
		c.lru.Remove(key)
		return
	}
	c.lru.Add(key, entry[V]{value: value, expires: expires})
}

func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Remove(key)
}

func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Clear()
}

// Len counts entries, including ones that expired but were not looked up yet.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lru.Len()
}
