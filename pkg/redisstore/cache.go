package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Cache is a namespaced cache-aside view over the shared Redis connection.
// Every key is stored as "{namespace}:{logical-key}" so many logical caches
// can share one physical store without collisions; callers only ever see
// logical keys.
//
// Values are stored as JSON. A value the encoder rejects is written as its
// plain string representation instead of failing the write; the read side
// tolerates non-JSON payloads for the same reason. The fallback is lossy (an
// int written through it reads back as a string), which is accepted: the
// cache must never hard-fail a write over an unusual value shape.
type Cache struct {
	client     *redis.Client
	namespace  string
	defaultTTL time.Duration
}

// NewCache constructs a cache namespaced under the given prefix. Entries
// written without an explicit TTL expire after defaultTTL.
func NewCache(client *redis.Client, namespace string, defaultTTL time.Duration) *Cache {
	return &Cache{
		client:     client,
		namespace:  namespace,
		defaultTTL: defaultTTL,
	}
}

// Namespace returns the cache's key prefix.
func (c *Cache) Namespace() string {
	return c.namespace
}

func (c *Cache) key(k string) string {
	return c.namespace + ":" + k
}

// Get fetches the stored value. The second return is false when the key does
// not exist. Stored JSON is decoded; anything else comes back as the raw
// string.
func (c *Cache) Get(ctx context.Context, key string) (interface{}, bool, error) {
	data, err := c.client.Get(ctx, c.key(key)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to get cache key %q", key)
	}

	var value interface{}
	if err := json.Unmarshal([]byte(data), &value); err != nil {
		return data, true, nil
	}
	return value, true, nil
}

// GetInto decodes the stored JSON into dest. Returns false when the key does
// not exist or the payload cannot be decoded into dest (a fallback-encoded
// entry, for example); such entries are treated as misses by typed readers.
func (c *Cache) GetInto(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, c.key(key)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "failed to get cache key %q", key)
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, nil
	}
	return true, nil
}

// Set writes the value with the given TTL, or the cache's default TTL when
// none is supplied. The TTL is assigned at write time and never renewed on
// read.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl ...time.Duration) error {
	expiry := c.defaultTTL
	if len(ttl) > 0 {
		expiry = ttl[0]
	}

	var payload string
	if data, err := json.Marshal(value); err != nil {
		payload = fmt.Sprint(value)
	} else {
		payload = string(data)
	}

	if err := c.client.Set(ctx, c.key(key), payload, expiry).Err(); err != nil {
		return errors.Wrapf(err, "failed to set cache key %q", key)
	}
	return nil
}

// Delete removes the key and reports whether a key was actually removed.
func (c *Cache) Delete(ctx context.Context, key string) (bool, error) {
	removed, err := c.client.Del(ctx, c.key(key)).Result()
	if err != nil {
		return false, errors.Wrapf(err, "failed to delete cache key %q", key)
	}
	return removed > 0, nil
}

// Exists reports whether the key is present.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(key)).Result()
	if err != nil {
		return false, errors.Wrapf(err, "failed to check cache key %q", key)
	}
	return n > 0, nil
}

// TTL returns the remaining time to live of the key.
func (c *Cache) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := c.client.TTL(ctx, c.key(key)).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read TTL of cache key %q", key)
	}
	return ttl, nil
}

// Keys returns the logical keys matching the pattern, with the namespace
// prefix stripped.
func (c *Cache) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := c.client.Keys(ctx, c.key(pattern)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list cache keys matching %q", pattern)
	}

	logical := make([]string, 0, len(keys))
	for _, k := range keys {
		logical = append(logical, strings.TrimPrefix(k, c.namespace+":"))
	}
	return logical, nil
}
