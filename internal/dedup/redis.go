package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces scout entries in a shared Redis database.
const keyPrefix = "scout:delivered:"

// RedisStore keeps the seen-set in Redis for deployments where the
// pipeline runs on ephemeral hosts. Entries carry no TTL: delivery is
// permanent.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects using a REDIS_URL-style address
// (redis://host:port/db) and verifies the connection.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// HasSeen reports whether the key was already delivered.
func (s *RedisStore) HasSeen(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("dedup lookup: %w", err)
	}
	return n > 0, nil
}

// MarkSeen records a delivery with its acknowledged timestamp.
func (s *RedisStore) MarkSeen(ctx context.Context, key string, deliveredAt time.Time) error {
	err := s.client.Set(ctx, keyPrefix+key, deliveredAt.Format(time.RFC3339Nano), 0).Err()
	if err != nil {
		return fmt.Errorf("dedup write: %w", err)
	}
	return nil
}

// Count returns the number of delivered issues on record.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	var total int
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		total++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("dedup scan: %w", err)
	}
	return total, nil
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
