package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheHelper provides prefixed JSON caching on top of a redis client
type CacheHelper struct {
	client *redis.Client
	prefix string
}

// NewCacheHelper creates a new cache helper instance
func NewCacheHelper(client *redis.Client, prefix string) *CacheHelper {
	return &CacheHelper{
		client: client,
		prefix: prefix,
	}
}

// Key prefixes shared by the portal
const (
	QueryPrefix   = "query:"
	VersionPrefix = "query-version:"
	SessionPrefix = "session:"
)

// GetCacheKey generates a cache key with prefix
func (c *CacheHelper) GetCacheKey(key string) string {
	return fmt.Sprintf("%s%s", c.prefix, key)
}

// Available reports whether a redis client is configured
func (c *CacheHelper) Available() bool {
	return c != nil && c.client != nil
}

// Get retrieves and unmarshals data from cache
func (c *CacheHelper) Get(ctx context.Context, key string, dest interface{}) error {
	if !c.Available() {
		return ErrCacheNotAvailable
	}

	data, err := c.client.Get(ctx, c.GetCacheKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheNotFound
		}
		return fmt.Errorf("cache get error: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache unmarshal error: %w", err)
	}
	return nil
}

// Set marshals and stores data in cache. A zero ttl keeps the key forever.
func (c *CacheHelper) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.Available() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}
	return c.client.Set(ctx, c.GetCacheKey(key), data, ttl).Err()
}

// Expire refreshes the ttl of an existing key
func (c *CacheHelper) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if !c.Available() {
		return nil
	}
	return c.client.Expire(ctx, c.GetCacheKey(key), ttl).Err()
}

// Delete removes data from cache
func (c *CacheHelper) Delete(ctx context.Context, keys ...string) error {
	if !c.Available() || len(keys) == 0 {
		return nil
	}

	cacheKeys := make([]string, len(keys))
	for i, key := range keys {
		cacheKeys[i] = c.GetCacheKey(key)
	}
	return c.client.Del(ctx, cacheKeys...).Err()
}

// maxUpdateAttempts bounds how often Update retries after losing a WATCH race
const maxUpdateAttempts = 16

// Update rewrites the JSON value at key in one WATCH/MULTI transaction. fn gets the
// stored bytes and returns the value to write back; it runs again when another
// writer changed the key first, so it must not keep state between calls.
func (c *CacheHelper) Update(ctx context.Context, key string, ttl time.Duration, fn func(data []byte) (interface{}, error)) error {
	if !c.Available() {
		return ErrCacheNotAvailable
	}

	cacheKey := c.GetCacheKey(key)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, cacheKey).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrCacheNotFound
			}
			return fmt.Errorf("cache get error: %w", err)
		}

		value, err := fn(data)
		if err != nil {
			return err
		}
		out, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("cache marshal error: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey, out, ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := c.client.Watch(ctx, txf, cacheKey)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return ErrCacheConflict
}

// Counter reads an integer counter, zero when unset
func (c *CacheHelper) Counter(ctx context.Context, key string) (int64, error) {
	if !c.Available() {
		return 0, ErrCacheNotAvailable
	}

	n, err := c.client.Get(ctx, c.GetCacheKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache counter error: %w", err)
	}
	return n, nil
}

// Increment bumps an integer counter and returns the new value
func (c *CacheHelper) Increment(ctx context.Context, key string) (int64, error) {
	if !c.Available() {
		return 0, ErrCacheNotAvailable
	}

	n, err := c.client.Incr(ctx, c.GetCacheKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("cache increment error: %w", err)
	}
	return n, nil
}

// InvalidatePattern removes all keys matching a pattern using SCAN instead of KEYS
func (c *CacheHelper) InvalidatePattern(ctx context.Context, pattern string) error {
	if !c.Available() {
		return nil
	}

	fullPattern := c.GetCacheKey(pattern)
	var cursor uint64
	var keys []string

	for {
		var scanKeys []string
		var err error
		scanKeys, cursor, err = c.client.Scan(ctx, cursor, fullPattern, 100).Result()
		if err != nil {
			slog.ErrorContext(ctx, "Cache scan pattern error",
				"error", err,
				"pattern", fullPattern)
			return fmt.Errorf("cache scan pattern error: %w", err)
		}
		keys = append(keys, scanKeys...)
		if cursor == 0 {
			break
		}
	}

	if len(keys) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	const batchSize = 100
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		pipe.Del(ctx, keys[i:end]...)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		slog.ErrorContext(ctx, "Cache pipeline delete error",
			"error", err,
			"total_keys", len(keys))
		return fmt.Errorf("cache pipeline delete error: %w", err)
	}
	return nil
}

// InvalidatePatterns drops every key matching any of the patterns, continuing past failures
func (c *CacheHelper) InvalidatePatterns(ctx context.Context, patterns ...string) error {
	var errs []error
	for _, pattern := range patterns {
		if err := c.InvalidatePattern(ctx, pattern); err != nil {
			errs = append(errs, fmt.Errorf("pattern %s: %w", pattern, err))
		}
	}
	return errors.Join(errs...)
}

// Push appends a JSON value to a list and refreshes the list ttl
func (c *CacheHelper) Push(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.Available() {
		return ErrCacheNotAvailable
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}

	fullKey := c.GetCacheKey(key)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, fullKey, data)
		if ttl > 0 {
			pipe.Expire(ctx, fullKey, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache push error: %w", err)
	}
	return nil
}

// Drain returns every raw list element and removes the list atomically
func (c *CacheHelper) Drain(ctx context.Context, key string) ([]string, error) {
	if !c.Available() {
		return nil, ErrCacheNotAvailable
	}

	fullKey := c.GetCacheKey(key)
	var rng *redis.StringSliceCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		rng = pipe.LRange(ctx, fullKey, 0, -1)
		pipe.Del(ctx, fullKey)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cache drain error: %w", err)
	}
	return rng.Val(), nil
}

// Publish sends a message on a redis channel
func (c *CacheHelper) Publish(ctx context.Context, channel string, payload interface{}) error {
	if !c.Available() {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}
	return c.client.Publish(ctx, c.GetCacheKey(channel), data).Err()
}

// Subscribe listens on a redis channel; the caller closes the returned PubSub
func (c *CacheHelper) Subscribe(ctx context.Context, channel string) (*redis.PubSub, error) {
	if !c.Available() {
		return nil, ErrCacheNotAvailable
	}
	return c.client.Subscribe(ctx, c.GetCacheKey(channel)), nil
}

// Cache errors
var (
	ErrCacheNotAvailable = errors.New("cache not available")
	ErrCacheNotFound     = errors.New("cache not found")
	ErrCacheConflict     = errors.New("cache key kept changing during update")
)

// CacheManager groups the helpers the portal uses
type CacheManager struct {
	Query   *CacheHelper
	Version *CacheHelper
	Session *CacheHelper

	client *redis.Client
}

// NewCacheManager creates cache manager with all cache helpers
func NewCacheManager(client *redis.Client) *CacheManager {
	return &CacheManager{
		Query:   NewCacheHelper(client, QueryPrefix),
		Version: NewCacheHelper(client, VersionPrefix),
		Session: NewCacheHelper(client, SessionPrefix),
		client:  client,
	}
}

// HealthCheck verifies cache connectivity
func (cm *CacheManager) HealthCheck(ctx context.Context) error {
	if cm.client == nil {
		return ErrCacheNotAvailable
	}

	if err := cm.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache health check failed: %w", err)
	}
	return nil
}
