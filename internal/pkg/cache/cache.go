package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/synthsara/codex/internal/pkg/env"
)

var client *redis.Client

// SetupCache initializes the connection to the redis-compatible cache server
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       0,
	})

	// Test the connection
	pong, err := client.Ping(context.Background()).Result()
	if err != nil {
		log.Printf("Warning: Could not connect to cache: %v", err)
	} else {
		log.Printf("Successfully connected to cache: %s", pong)
	}
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// Store is a JSON read-through cache. A nil Store behaves as a permanent miss
// so callers can run without redis.
type Store struct {
	client *redis.Client
	prefix string
}

// NewStore wraps a redis client. Keys are namespaced with prefix.
func NewStore(c *redis.Client, prefix string) *Store {
	if c == nil {
		return nil
	}
	return &Store{client: c, prefix: prefix}
}

func (s *Store) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

// SetJSON stores v under key with the given expiration
func (s *Store) SetJSON(ctx context.Context, key string, v any, expiration time.Duration) error {
	if s == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(key), raw, expiration).Err()
}

// GetJSON decodes the cached value into v. It reports false on a miss.
func (s *Store) GetJSON(ctx context.Context, key string, v any) (bool, error) {
	if s == nil {
		return false, nil
	}
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the given keys
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if s == nil || len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, s.key(k))
	}
	return s.client.Del(ctx, full...).Err()
}

// Version returns the counter stored at key, or 0 when it is unset.
func (s *Store) Version(ctx context.Context, key string) (int64, error) {
	if s == nil {
		return 0, nil
	}
	n, err := s.client.Get(ctx, s.key(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Bump increments the counter at key and returns the new value.
func (s *Store) Bump(ctx context.Context, key string) (int64, error) {
	if s == nil {
		return 0, nil
	}
	return s.client.Incr(ctx, s.key(key)).Result()
}
