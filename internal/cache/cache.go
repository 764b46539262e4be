// Package cache provides the TTL cache injected into the rule store, the
// factor retrieval engine and the AI gateway.
package cache

import (
	"strings"
	"sync"
	"time"
)

// Cache is a key/value store with per-entry expiry.
type Cache[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V, ttl time.Duration)
	Delete(key string)
	DeletePrefix(prefix string) int
}

type entry[V any] struct {
	expiry time.Time
	value  V
}

// Memory is an in-process Cache. Values are stored and replaced whole, so a
// reader sees either the previous value or the new one.
type Memory[V any] struct {
	entries map[string]entry[V]
	now     func() time.Time
	stopCh  chan struct{}
	mu      sync.RWMutex
	once    sync.Once
}

// NewMemory creates a cache that sweeps expired entries every interval.
// A zero interval disables the background sweep; expired entries are then
// only dropped lazily on Get.
func NewMemory[V any](interval time.Duration) *Memory[V] {
	c := &Memory[V]{
		entries: make(map[string]entry[V]),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	if interval > 0 {
		go c.cleanup(interval)
	}
	return c
}

// Get returns the value for key if present and not expired.
func (c *Memory[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if !e.expiry.IsZero() && c.now().After(e.expiry) {
		c.Delete(key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key. A ttl <= 0 means the entry never expires.
func (c *Memory[V]) Set(key string, value V, ttl time.Duration) {
	e := entry[V]{value: value}
	if ttl > 0 {
		e.expiry = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Delete removes key.
func (c *Memory[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// DeletePrefix removes every key starting with prefix and returns how many were removed.
func (c *Memory[V]) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired or not.
func (c *Memory[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Memory[V]) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *Memory[V]) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, e := range c.entries {
		if !e.expiry.IsZero() && now.After(e.expiry) {
			delete(c.entries, key)
		}
	}
}

// Close stops the cleanup goroutine.
func (c *Memory[V]) Close() {
	c.once.Do(func() { close(c.stopCh) })
}

// Done is closed once Close has been called.
func (c *Memory[V]) Done() <-chan struct{} {
	return c.stopCh
}

// Noop is a Cache that stores nothing.
type Noop[V any] struct{}

// Get always misses.
func (Noop[V]) Get(string) (V, bool) {
	var zero V
	return zero, false
}

// Set discards the value.
func (Noop[V]) Set(string, V, time.Duration) {}

// Delete does nothing.
func (Noop[V]) Delete(string) {}

// DeletePrefix does nothing.
func (Noop[V]) DeletePrefix(string) int { return 0 }
