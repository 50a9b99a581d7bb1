// Package tiered implements a two-level (L1 + L2) cache adapter. Deckhand
// stacks the in-process ristretto cache over the NATS KV remote cache when
// NATS is configured; with NATS absent, services use the L1 alone.
package tiered

import (
	"context"
	"errors"
	"time"

	"github.com/deckhand-ai/deckhand/internal/port/cache"
)

// Cache reads through L1 into L2, promoting remote hits into L1 so repeat
// reads stay in process. Writes and invalidations reach both levels even
// when one of them fails, otherwise a failed L1 delete would let the next
// read promote the stale remote value right back.
type Cache struct {
	l1       cache.Cache
	l2       cache.Cache
	l1Expire time.Duration
}

var _ cache.Cache = (*Cache)(nil)

// New stacks l1 over l2. l1Expire bounds how long promoted entries live in
// L1; it is deliberately shorter than the write TTL so a remote
// invalidation is picked up within l1Expire at worst.
func New(l1, l2 cache.Cache, l1Expire time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, l1Expire: l1Expire}
}

// Get returns the first hit, trying L1 then L2. A remote hit is promoted
// into L1 best-effort.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, ok, err := c.l1.Get(ctx, key)
	if err != nil || ok {
		return val, ok, err
	}

	val, ok, err = c.l2.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}

	_ = c.l1.Set(ctx, key, val, c.l1Expire)
	return val, true, nil
}

// Set writes the value to both levels.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.Join(
		c.l1.Set(ctx, key, value, ttl),
		c.l2.Set(ctx, key, value, ttl),
	)
}

// Delete invalidates the key on both levels.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return errors.Join(
		c.l1.Delete(ctx, key),
		c.l2.Delete(ctx, key),
	)
}
