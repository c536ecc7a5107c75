// Package cache keeps list query results in Redis (cache-aside). A nil *Cache is
// valid and behaves as an always-missing cache, which is how the service runs
// without REDIS_ADDR.
//
// Each entity has a generation counter that InvalidateEntity bumps. Fetch
// stores results under the generation it read before loading, so a load that
// races a write lands under a key nobody reads any more.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"catalog-backend/internal/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "catalog:"

// loads coalesces concurrent misses on the same key into one load.
var loads singleflight.Group

type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis. It returns nil, nil when no address is configured.
func New(ctx context.Context, cfg *config.Config) (*Cache, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewWithClient(client, cfg.CacheTTL), nil
}

func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// ListKey derives a stable key for a list query of entity.
func ListKey(entity string, query any) (string, error) {
	data, err := json.Marshal(query)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:list:%x", entity, md5.Sum(data)), nil
}

// Get loads key into dest and reports whether it was a hit.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	if c == nil {
		return false
	}

	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		zap.L().Warn("cache entry unreadable", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *Cache) Set(ctx context.Context, key string, value any) {
	if c == nil {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		zap.L().Warn("cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, keyPrefix+key, data, c.ttl).Err(); err != nil {
		zap.L().Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func genKey(entity string) string {
	return keyPrefix + entity + ":gen"
}

// versioned puts the current generation of key's entity into key. It reports
// false when the generation cannot be read.
func (c *Cache) versioned(ctx context.Context, key string) (string, bool) {
	if c == nil {
		return key, true
	}
	entity, hash, ok := strings.Cut(key, ":list:")
	if !ok {
		return key, true
	}

	gen, err := c.client.Get(ctx, genKey(entity)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		zap.L().Warn("cache generation unreadable", zap.String("entity", entity), zap.Error(err))
		return "", false
	}
	return fmt.Sprintf("%s:list:g%d:%s", entity, gen, hash), true
}

// InvalidateEntity drops every cached list of entity.
func (c *Cache) InvalidateEntity(ctx context.Context, entity string) {
	if c == nil {
		return
	}

	if err := c.client.Incr(ctx, genKey(entity)).Err(); err != nil {
		zap.L().Warn("cache generation bump failed", zap.String("entity", entity), zap.Error(err))
	}

	pattern := keyPrefix + entity + ":list:*"
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			zap.L().Warn("cache scan failed", zap.String("pattern", pattern), zap.Error(err))
			return
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				zap.L().Warn("cache delete failed", zap.String("pattern", pattern), zap.Error(err))
				return
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// Fetch returns the cached value for key, or runs load once for all concurrent
// callers on a miss and caches its result. It works on a nil *Cache.
func Fetch[T any](ctx context.Context, c *Cache, key string, load func() (T, error)) (T, error) {
	key, ok := c.versioned(ctx, key)
	if !ok {
		return load()
	}

	var hit T
	if c.Get(ctx, key, &hit) {
		return hit, nil
	}

	v, err, _ := loads.Do(key, func() (any, error) {
		val, err := load()
		if err != nil {
			return val, err
		}
		c.Set(ctx, key, val)
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
