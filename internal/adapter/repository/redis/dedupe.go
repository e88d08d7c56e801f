package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupeStore implements usecase.DedupeStore using Redis. SETNX gives one
// winner per key across all consumer instances, which turns at-least-once
// outbox delivery into effectively-once processing.
type DedupeStore struct {
	client *redis.Client
	prefix string
}

// NewDedupeStore creates a new DedupeStore.
func NewDedupeStore(client *redis.Client) *DedupeStore {
	return &DedupeStore{
		client: client,
		prefix: "dedupe:",
	}
}

// MarkOnce records key with a TTL and reports whether this call was the
// first to see it.
func (s *DedupeStore) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.prefix+key, "1", ttl).Result()
}
