package cache

import (
	"context"
	"time"
)

// Cache defines the key-value operations the transcript store is built on.
// Rows are hashes: one hash per key, one field per column.
type Cache interface {
	HashGet(ctx context.Context, key, field string) (string, bool, error)
	HashSet(ctx context.Context, key, field, value string) error
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
