package statecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is the redis entry lifetime. Expiry is the eviction policy for
// the shared cache; finished or idle games simply age out.
const DefaultTTL = 6 * time.Hour

// RedisCache is a shared cache backed by redis, for deployments running more
// than one process against the same journal.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wraps an existing redis client. ttl <= 0 selects DefaultTTL.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func redisKey(gameID string) string {
	return "meldtable:game:" + gameID + ":state"
}

// Get returns the cached entry for the game, or ErrMiss when the key is
// absent or has expired.
func (c *RedisCache) Get(ctx context.Context, gameID string) (Entry, error) {
	data, err := c.client.Get(ctx, redisKey(gameID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, ErrMiss
		}
		return Entry{}, fmt.Errorf("redis get %s: %w", gameID, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, fmt.Errorf("decode cached state for %s: %w", gameID, err)
	}
	return entry, nil
}

// Put stores the entry with the configured TTL.
func (c *RedisCache) Put(ctx context.Context, gameID string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode state for %s: %w", gameID, err)
	}
	if err := c.client.Set(ctx, redisKey(gameID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", gameID, err)
	}
	return nil
}

// Invalidate drops the entry for the game.
func (c *RedisCache) Invalidate(ctx context.Context, gameID string) error {
	if err := c.client.Del(ctx, redisKey(gameID)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", gameID, err)
	}
	return nil
}

// Close closes the underlying redis client.
func (c *RedisCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
