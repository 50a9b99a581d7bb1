// Package cache defines the byte-oriented cache port backing conversation
// reads.
package cache

import (
	"context"
	"time"
)

// Cache stores serialized values under string keys with per-entry TTLs.
// Get's second return distinguishes a miss from an empty value; errors are
// reserved for backend trouble, not absent keys.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
