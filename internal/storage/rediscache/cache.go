package rediscache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	sl "mobile_auth/internal/lib/logger"
	"mobile_auth/internal/storage"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "cache:"

// Cache is the centralized response cache. Writes and invalidation are
// best-effort: a Redis outage degrades to "no caching", never to a failed
// request.
type Cache struct {
	client *redis.Client
	log    *slog.Logger
}

func New(ctx context.Context, addr, pass string, db int, log *slog.Logger) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     pass,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("response cache unreachable, continuing without cached reads", sl.Err(err))
	}

	return &Cache{client: client, log: log}
}

// Key builds a deterministic cache key from route, query and principal so
// that different principals or query shapes never share a slot.
// url.Values.Encode sorts by key, which normalizes the query part.
func Key(path string, query url.Values, principalID string) string {
	return fmt.Sprintf("%s%s?%s:%s", keyPrefix, path, query.Encode(), principalID)
}

// PrincipalPattern matches every cached entry scoped to one principal.
func PrincipalPattern(principalID string) string {
	return keyPrefix + "*:" + principalID
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrCacheMiss
		}

		c.log.Warn("cache read failed", sl.Err(err))
		return nil, storage.ErrCacheMiss
	}

	return val, nil
}

// Set stores a payload fire-and-forget: failures are logged, never
// surfaced.
func (c *Cache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		c.log.Warn("cache write failed", slog.String("key", key), sl.Err(err))
	}
}

// Invalidate deletes every key matching the glob pattern. Called by
// mutating flows before their success response is returned, bounding the
// staleness window to in-flight reads that already passed the cache check.
func (c *Cache) Invalidate(ctx context.Context, pattern string) error {
	const op = "storage.rediscache.Invalidate"

	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *Cache) Close() {
	_ = c.client.Close()
}
