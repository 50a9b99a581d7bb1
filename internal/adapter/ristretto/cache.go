// Package ristretto implements the cache port with dgraph-io/ristretto as the
// in-process level. Conversation snapshots and resolved backend endpoints are
// the main tenants; both are small JSON blobs with short TTLs.
package ristretto

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache wraps a ristretto cache keyed by string with []byte values. Cost is
// the value length in bytes, so MaxSizeMB bounds resident cache memory.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New creates a cache capped at maxSizeMB megabytes of cached values.
func New(maxSizeMB int64) (*Cache, error) {
	if maxSizeMB <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d MB", maxSizeMB)
	}
	maxCost := maxSizeMB << 20
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		// Conversation snapshots run a few KB each; counters sized for
		// roughly 10x the item count that fits at that grain.
		NumCounters: maxCost / 1024 * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}
	return &Cache{c: c}, nil
}

// Get retrieves a value. A miss is (nil, false, nil), never an error.
func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores a value with the given TTL, costed at its byte length.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.c.SetWithTTL(key, value, int64(len(value)), ttl)
	return nil
}

// Delete removes a value. Deleting an absent key is a no-op.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Wait blocks until buffered writes have been applied. Ristretto admits
// writes asynchronously; tests call this before reading back.
func (c *Cache) Wait() {
	c.c.Wait()
}

// Close shuts down the cache and releases resources.
func (c *Cache) Close() {
	c.c.Close()
}
