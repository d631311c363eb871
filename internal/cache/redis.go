package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/lsat-prep/adaptive/internal/models"
)

// RedisCache shares performance snapshots between server processes.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(addr string, ttl time.Duration) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &RedisCache{client: client, ttl: ttl}
}

func snapshotKey(userID int64) string {
	return fmt.Sprintf("analytics:snapshot:%d", userID)
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Get returns nil, nil on a miss. Redis expires entries on its own.
func (c *RedisCache) Get(ctx context.Context, userID int64) (*models.PerformanceSnapshot, error) {
	data, err := c.client.Get(ctx, snapshotKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get snapshot: %w", err)
	}

	var snap models.PerformanceSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

func (c *RedisCache) Set(ctx context.Context, snapshot *models.PerformanceSnapshot) error {
	if snapshot == nil {
		return nil
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return c.client.Set(ctx, snapshotKey(snapshot.UserID), data, c.ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, userID int64) error {
	return c.client.Del(ctx, snapshotKey(userID)).Err()
}
