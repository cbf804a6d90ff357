// Package redis provides a storage.KVStore backed by a Redis server.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"tradetrainer/internal/observability"
	"tradetrainer/internal/storage"
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// KVStore implements storage.KVStore with plain Redis strings.
type KVStore struct {
	client *goredis.Client
}

// New connects to Redis and pings the server.
func New(ctx context.Context, cfg Config) (*KVStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &KVStore{client: client}, nil
}

// Client returns the underlying Redis client for health checks.
func (s *KVStore) Client() *goredis.Client { return s.client }

// Close closes the client.
func (s *KVStore) Close() error {
	return s.client.Close()
}

// Get returns the value under key. Returns ErrNotFound if absent.
func (s *KVStore) Get(ctx context.Context, key string) (string, error) {
	start := time.Now()
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		observability.RecordDBQuery("redis", "get", time.Since(start).Seconds(), nil)
		return "", storage.ErrNotFound
	}
	observability.RecordDBQuery("redis", "get", time.Since(start).Seconds(), err)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key without expiry.
func (s *KVStore) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	err := s.client.Set(ctx, key, value, 0).Err()
	observability.RecordDBQuery("redis", "set", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.client.Del(ctx, key).Err()
	observability.RecordDBQuery("redis", "delete", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Compile-time interface check.
var _ storage.KVStore = (*KVStore)(nil)
