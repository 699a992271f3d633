package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps values in Redis under a common key prefix.
// Batches run in a MULTI/EXEC transaction.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// Compile-time checks to ensure RedisStore implements Store and BatchSetter
var (
	_ Store       = (*RedisStore)(nil)
	_ BatchSetter = (*RedisStore)(nil)
)

// NewRedisStore creates a RedisStore using an existing client.
// The caller owns the client and is responsible for closing it.
func NewRedisStore(client redis.UniversalClient, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("missing redis client")
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
	}, nil
}

// Get returns the value for key. Returns ErrNotFound if Redis has no such key.
func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key without expiry.
func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// SetMany writes all values in one transaction.
func (r *RedisStore) SetMany(ctx context.Context, values map[string]string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, value := range values {
			pipe.Set(ctx, r.prefix+key, value, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis transaction: %w", err)
	}
	return nil
}
