// Package cache provides content-addressed memoization with
// at-most-one-in-flight coordination per key. The router's model
// fallback uses it so identical free-text inputs under concurrent load
// trigger exactly one upstream model call.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Key derives a content-addressed cache key from a scope and payload
// parts. The payload is normalized (trimmed, lowercased, whitespace
// collapsed) before hashing so trivially different spellings of the
// same input share an entry.
func Key(scope string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(normalize(p)))
		h.Write([]byte{0})
	}
	return scope + ":" + hex.EncodeToString(h.Sum(nil))
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// Cache is a TTL map with singleflight compute coordination. Errors
// are never cached, so a failed computation can be retried under the
// same key.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	flight  singleflight.Group
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]entry)}
}

// Get returns a live entry.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; another caller may have
		// refreshed the entry meanwhile.
		if cur, ok := c.entries[key]; ok && time.Now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Put stores a value with a TTL.
func (c *Cache) Put(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// GetOrCompute returns a cached value, or computes it with at most one
// concurrent computation per key. Callers that arrive while a
// computation is in flight await its result instead of issuing a
// duplicate upstream call. The returned flag is true whenever fn did
// not run on this caller's behalf: a stored entry, or a result shared
// from another caller's in-flight computation.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) (interface{}, error)) (interface{}, bool, error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}

	// computed stays false for callers whose closure singleflight never
	// invokes; the channel receive below orders the write before the
	// read.
	computed := false
	ch := c.flight.DoChan(key, func() (interface{}, error) {
		// Check again inside the flight: a racing caller may have
		// populated the entry between Get and DoChan.
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		computed = true
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.Put(key, v, ttl)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val, !computed, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Invalidate drops a single entry.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidateScope drops every entry whose key carries the scope
// prefix. Used when the tool schema set or permissions config changes.
func (c *Cache) InvalidateScope(scope string) {
	prefix := scope + ":"
	c.mu.Lock()
	n := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			n++
		}
	}
	c.mu.Unlock()
	if n > 0 {
		log.Debug().Str("scope", scope).Int("evicted", n).Msg("Cache scope invalidated")
	}
}

// Len returns the number of stored entries, including expired ones not
// yet swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
