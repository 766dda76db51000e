package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v9"
)

// DefaultKeyPrefix redis key 前缀
const DefaultKeyPrefix = "idempotency:"

// RedisStore 基于 SETNX 的跨进程幂等存储
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore 创建 redis 存储
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+key, time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim idempotency key %s: %w", key, err)
	}
	return ok, nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key %s: %w", key, err)
	}
	return nil
}
