package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces all keys written by RedisStore.
const DefaultKeyPrefix = "esi:"

// RedisStore is a Store backed by Redis. Each write is a single SET with EX,
// so entries appear whole or not at all.
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed store using DefaultKeyPrefix.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return NewRedisStoreWithPrefix(redisClient, DefaultKeyPrefix)
}

// NewRedisStoreWithPrefix creates a Redis-backed store with a custom key prefix.
func NewRedisStoreWithPrefix(redisClient *redis.Client, prefix string) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

// Get retrieves the raw value stored under key.
// Returns ErrCacheMiss if the key doesn't exist.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.redis.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// SetWithExpiry stores value under key. Redis removes it once ttl elapses.
func (s *RedisStore) SetWithExpiry(ctx context.Context, key string, ttl time.Duration, value []byte) error {
	ttl = ttl.Truncate(time.Second)
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	if err := s.redis.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	CacheWrittenBytes.WithLabelValues("redis").Add(float64(len(value)))
	return nil
}

// Ping checks connectivity to the Redis backend.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
