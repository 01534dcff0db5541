// Package cache provides a thread-safe cache with per-entry expiration.
package cache

import (
	"sync"
	"time"
)

type item[V any] struct {
	value   V
	expires time.Time
}

// TTLCache maps keys to values that expire ttl after they were last Set.
// When maxEntries is positive, a Set that would exceed it first drops expired
// entries and then the entry closest to expiry.
type TTLCache[K comparable, V any] struct {
	mu         sync.RWMutex
	data       map[K]item[V]
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// New creates an empty cache. maxEntries <= 0 means unbounded.
func New[K comparable, V any](ttl time.Duration, maxEntries int) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		data:       make(map[K]item[V]),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the value for key if present and not expired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.data[key]
	if !ok || !c.now().Before(it.expires) {
		var zero V
		return zero, false
	}
	return it.value, true
}

// Set stores value under key and restarts its TTL.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.data[key]; !exists && c.maxEntries > 0 && len(c.data) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.data[key] = item[V]{value: value, expires: now.Add(c.ttl)}
}

// GetOrCompute returns the cached value for key, or calls compute and caches
// its result when it succeeds. compute runs without the lock held, so two
// callers racing on the same key may both compute.
func (c *TTLCache[K, V]) GetOrCompute(key K, compute func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := compute()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

// evictLocked must be called with the write lock held.
func (c *TTLCache[K, V]) evictLocked(now time.Time) {
	var (
		oldestKey K
		oldest    time.Time
		found     bool
	)
	for k, it := range c.data {
		if !now.Before(it.expires) {
			delete(c.data, k)
			continue
		}
		if !found || it.expires.Before(oldest) {
			oldestKey, oldest, found = k, it.expires, true
		}
	}
	if len(c.data) >= c.maxEntries && found {
		delete(c.data, oldestKey)
	}
}

// Delete removes key.
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Purge drops every expired entry and returns how many were removed.
func (c *TTLCache[K, V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, it := range c.data {
		if !now.Before(it.expires) {
			delete(c.data, k)
			removed++
		}
	}
	return removed
}

// Invalidate clears the cache.
func (c *TTLCache[K, V]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[K]item[V])
}

// Len returns the number of stored entries, expired or not.
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
