package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/advent-arcade/internal/config"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each document as a Redis string
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, cfg *config.RedisConfig, logger *slog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg.KeyPrefix, logger), nil
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client *redis.Client, prefix string, logger *slog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

// Name returns the backend name
func (s *RedisStore) Name() string { return "redis" }

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// documentKey returns the Redis key for a document
func (s *RedisStore) documentKey(key string) string {
	return s.prefix + key
}

// Read returns the document stored under key
func (s *RedisStore) Read(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, s.documentKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return data, nil
}

// Write replaces the document under key
func (s *RedisStore) Write(ctx context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.documentKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("setting document: %w", err)
	}
	return nil
}
