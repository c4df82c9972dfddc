package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces this library's keys inside a shared Redis
// instance.
const DefaultPrefix = "cache:"

// Redis stores values in a shared Redis instance, logically
// partitioned by a key prefix so multiple stores can coexist without
// collision. Clear and Keys only ever touch this store's partition.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis creates a Redis-backed store. An empty prefix falls back to
// DefaultPrefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{
		client: client,
		prefix: prefix,
	}
}

// Get returns the value for key, or ok=false if absent.
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, r.prefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return value, true, nil
}

// Set stores value under key with no server-side expiry; lifetimes are
// managed by the cache layer on top.
func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Clear removes every key in this store's partition.
func (r *Redis) Clear(ctx context.Context) error {
	keys, err := r.scan(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis clear: %w", err)
	}
	return nil
}

// Keys returns all keys in this store's partition with the prefix
// stripped.
func (r *Redis) Keys(ctx context.Context) ([]string, error) {
	raw, err := r.scan(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, strings.TrimPrefix(k, r.prefix))
	}
	return keys, nil
}

// scan iterates the partition with SCAN to avoid blocking Redis the
// way KEYS would.
func (r *Redis) scan(ctx context.Context) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}

var _ Backend = (*Redis)(nil)
