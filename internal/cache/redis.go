// Package cache wraps redis for short-lived dedup keys. The cache is
// optional and best-effort: a nil *Cache is safe to use, and the sqlite
// repository stays authoritative for every decision taken through it.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func New(addr, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	return &Cache{client: client}, nil
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// Exists reports whether the key is present. Errors degrade to false so
// callers fall through to their authoritative check.
func (c *Cache) Exists(ctx context.Context, key string) bool {
	if c == nil {
		return false
	}
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false
	}
	return n > 0
}

// Set stores a marker key with a TTL, best-effort.
func (c *Cache) Set(ctx context.Context, key string, ttl time.Duration) {
	if c == nil {
		return
	}
	_ = c.client.Set(ctx, key, "1", ttl).Err()
}

// AlertDedupKey names the suppression marker for one (server, metric
// type) pair.
func AlertDedupKey(serverID int64, metricType string) string {
	return fmt.Sprintf("alert:dedup:%d:%s", serverID, metricType)
}
