package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "timetable:"

// RedisBlobRepository stores blobs as plain Redis strings, namespaced under a
// fixed prefix. Entries never expire; the blob store is the system of record
// on this backend.
type RedisBlobRepository struct {
	client *redis.Client
}

// NewRedisBlobRepository constructs the repository.
func NewRedisBlobRepository(client *redis.Client) *RedisBlobRepository {
	return &RedisBlobRepository{client: client}
}

// Get fetches a blob by key; a missing key yields the empty string.
func (r *RedisBlobRepository) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

// Set inserts or overwrites a blob.
func (r *RedisBlobRepository) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, redisKeyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes blobs by key. Missing keys are ignored.
func (r *RedisBlobRepository) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = redisKeyPrefix + key
	}
	if err := r.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("redis delete blobs: %w", err)
	}
	return nil
}
