package ratelimit

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisStore implements Store on Redis so limits hold across instances.
// On Redis errors it fails open (the attempt proceeds): a broken limiter must
// not take down the login path, only weaken it.
type RedisStore struct {
	client *redis.Client
	config Config
	prefix string
}

// NewRedisStore creates a Redis-backed limiter store.
func NewRedisStore(client *redis.Client, config Config, prefix string) *RedisStore {
	if config.Limit <= 0 {
		config = DefaultConfig()
	}
	if prefix == "" {
		prefix = "adminlogin"
	}
	return &RedisStore{
		client: client,
		config: config,
		prefix: prefix,
	}
}

// NewRedisStoreFromURL dials Redis from a URL (redis://host:port/db).
func NewRedisStoreFromURL(url string, config Config) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewRedisStore(redis.NewClient(opts), config, ""), nil
}

// Hit implements Store. INCR plus an expiry set only on the first attempt
// gives the fixed window anchored at the first hit.
func (s *RedisStore) Hit(ctx context.Context, key string) (Result, error) {
	redisKey := fmt.Sprintf("%s:%s", s.prefix, key)

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return Result{Allowed: true, Remaining: s.config.Limit}, fmt.Errorf("redis error: %w", err)
	}

	if count == 1 {
		// First attempt in the window anchors the reset time.
		if err := s.client.Expire(ctx, redisKey, s.config.WindowDuration).Err(); err != nil {
			return Result{Allowed: true, Remaining: s.config.Limit - 1}, fmt.Errorf("redis error: %w", err)
		}
	}

	if count > int64(s.config.Limit) {
		retryAfter := s.config.WindowDuration
		if ttl, err := s.client.TTL(ctx, redisKey).Result(); err == nil && ttl > 0 {
			retryAfter = ttl
		}
		return Result{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
	}

	return Result{Allowed: true, Remaining: s.config.Limit - int(count)}, nil
}

// Reset implements Store.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, fmt.Sprintf("%s:%s", s.prefix, key)).Err()
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
