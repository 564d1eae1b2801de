// Package cache implements the multi-layer cache (C3): a namespaced
// layer:subkey key-value store with a bounded in-process LRU tier in front
// of an optional persistent backend.
package cache

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
)

// Entry is a single cached value with its expiry.
type Entry struct {
	Value     []byte
	ExpiresAt time.Time
}

// Expired returns true if the entry has passed its expiration time.
func (e *Entry) Expired() bool {
	return time.Now().After(e.ExpiresAt)
}

// Store is the persistence interface for the second cache tier.
// Implementations may use SQLite or other backends. A nil Store is valid:
// the cache then runs LRU-only.
type Store interface {
	GetCache(layer, subkey string) (value []byte, expiresAt time.Time, hitCount int64, err error)
	SetCache(layer, subkey string, value []byte, expiresAt time.Time) error
	DeleteCache(layer, subkey string) error
	IncrementHitCount(layer, subkey string) error
	DeleteExpiredCache() (int64, error)
}

type lruKey struct {
	layer  string
	subkey string
}

// Cache is the namespaced multi-layer cache used across C2/C3/C8/C12.
type Cache struct {
	mu      sync.Mutex
	memory  *lru.Cache[lruKey, *Entry]
	store   Store
	stats   map[string]*layerStats
	statsMu sync.Mutex
}

type layerStats struct {
	hits   int64
	misses int64
}

// New creates a Cache with the given in-memory LRU capacity (per process,
// shared across all layers) and optional persistent Store.
func New(store Store, maxMemoryEntries int) (*Cache, error) {
	if maxMemoryEntries <= 0 {
		maxMemoryEntries = 4096
	}
	mem, err := lru.New[lruKey, *Entry](maxMemoryEntries)
	if err != nil {
		return nil, fmt.Errorf("cache: creating LRU: %w", err)
	}
	return &Cache{
		memory: mem,
		store:  store,
		stats:  make(map[string]*layerStats),
	}, nil
}

// Get retrieves a value from the given layer/subkey. ok is false on miss
// or expiry.
func (c *Cache) Get(layer, subkey string) (value []byte, ok bool) {
	key := lruKey{layer, subkey}

	if entry, found := c.memory.Get(key); found {
		if !entry.Expired() {
			c.record(layer, true)
			return entry.Value, true
		}
		c.memory.Remove(key)
	}

	if c.store != nil {
		v, expiresAt, _, err := c.store.GetCache(layer, subkey)
		if err == nil && time.Now().Before(expiresAt) {
			c.memory.Add(key, &Entry{Value: v, ExpiresAt: expiresAt})
			_ = c.store.IncrementHitCount(layer, subkey)
			c.record(layer, true)
			return v, true
		}
	}

	c.record(layer, false)
	return nil, false
}

// Set stores a value under layer/subkey with the given TTL.
func (c *Cache) Set(layer, subkey string, value []byte, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl)
	key := lruKey{layer, subkey}
	c.memory.Add(key, &Entry{Value: value, ExpiresAt: expiresAt})

	if c.store != nil {
		if err := c.store.SetCache(layer, subkey, value, expiresAt); err != nil {
			return fmt.Errorf("cache: set %s:%s: %w", layer, subkey, err)
		}
	}
	return nil
}

// Delete removes a value from both tiers. Used to release the C12 lock key.
func (c *Cache) Delete(layer, subkey string) error {
	c.memory.Remove(lruKey{layer, subkey})
	if c.store != nil {
		if err := c.store.DeleteCache(layer, subkey); err != nil {
			return fmt.Errorf("cache: delete %s:%s: %w", layer, subkey, err)
		}
	}
	return nil
}

// Exists reports whether a non-expired value is present, without counting
// it toward hit/miss stats (used for lock-presence checks in C12).
func (c *Cache) Exists(layer, subkey string) bool {
	key := lruKey{layer, subkey}
	if entry, found := c.memory.Peek(key); found && !entry.Expired() {
		return true
	}
	if c.store != nil {
		_, expiresAt, _, err := c.store.GetCache(layer, subkey)
		if err == nil && time.Now().Before(expiresAt) {
			return true
		}
	}
	return false
}

// Stats returns the hit/miss counters for a layer.
func (c *Cache) Stats(layer string) (hits, misses int64) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	s, ok := c.stats[layer]
	if !ok {
		return 0, 0
	}
	return s.hits, s.misses
}

func (c *Cache) record(layer string, hit bool) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	s, ok := c.stats[layer]
	if !ok {
		s = &layerStats{}
		c.stats[layer] = s
	}
	if hit {
		s.hits++
	} else {
		s.misses++
	}
}

// StartPurger starts a background goroutine that periodically purges expired
// entries from the persistent store and evicts expired entries from the
// in-memory LRU. It runs every interval until done is closed, and the
// returned channel is closed when the goroutine exits so callers can
// synchronize shutdown before closing the underlying store.
func (c *Cache) StartPurger(done <-chan struct{}, interval time.Duration) <-chan struct{} {
	finished := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(finished)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Error().Interface("panic", r).Msg("cache purger: recovered from panic")
						}
					}()
					c.purge()
				}()
			}
		}
	}()
	return finished
}

// purge removes expired entries from both the persistent store and the
// in-memory LRU cache.
func (c *Cache) purge() {
	if c.store != nil {
		_, _ = c.store.DeleteExpiredCache()
	}

	for _, key := range c.memory.Keys() {
		if entry, ok := c.memory.Peek(key); ok && entry.Expired() {
			c.memory.Remove(key)
		}
	}
}
