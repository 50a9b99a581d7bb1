// Package natskv implements the cache port on a NATS JetStream KV bucket.
// It is the remote level under the in-process ristretto cache, so
// conversation snapshots survive a deckhand restart and are shared when
// several instances point at the same NATS.
package natskv

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/deckhand-ai/deckhand/internal/port/cache"
)

// Cache adapts a JetStream KeyValue bucket to the cache port. Entry
// lifetime comes from the bucket TTL set at creation; the per-call TTL is
// ignored.
type Cache struct {
	kv jetstream.KeyValue
}

var _ cache.Cache = (*Cache)(nil)

// New wraps an existing KV bucket. Buckets are created with their TTL via
// the queue adapter's KeyValue helper.
func New(kv jetstream.KeyValue) *Cache {
	return &Cache{kv: kv}
}

// Get retrieves a value. A missing key is a miss, not an error.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := c.kv.Get(ctx, key)
	switch {
	case errors.Is(err, jetstream.ErrKeyNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return entry.Value(), true, nil
}

// Set stores a value. The bucket TTL governs expiry.
func (c *Cache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	_, err := c.kv.Put(ctx, key, value)
	return err
}

// Delete removes a value. Deleting an absent key is a no-op.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return err
	}
	return nil
}
