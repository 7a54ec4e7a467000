package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache wraps a Redis client with key prefixing and JSON values.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache creates a Redis cache client and pings the server.
func NewRedisCache(opts ...RedisOption) (*RedisCache, error) {
	cfg := &RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		PoolTimeout:  30 * time.Second,
		MinIdleConns: 2,
		Prefix:       "vitalwatch",
	}

	for _, opt := range opts {
		opt(cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		PoolTimeout:  cfg.PoolTimeout,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisCache{client: client, prefix: cfg.Prefix}, nil
}

// Client returns underlying redis client.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// DeleteByPattern removes every key matching pattern under the prefix. It uses
// SCAN so large keyspaces do not block the server.
func (c *RedisCache) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	iter := c.client.Scan(ctx, 0, c.Key(pattern), 200).Iterator()
	var batch []string
	removed := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.client.Unlink(ctx, batch...).Result()
		removed += int(n)
		batch = batch[:0]
		return err
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 200 {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	return removed, flush()
}

// PushCapped prepends values to a list, trims it to max entries and refreshes
// its TTL, all in one transaction. A zero ttl leaves the key persistent.
func (c *RedisCache) PushCapped(ctx context.Context, key string, max int, ttl time.Duration, values ...interface{}) error {
	if len(values) == 0 {
		return nil
	}
	encoded := make([]interface{}, 0, len(values))
	for _, v := range values {
		data, err := encode(v)
		if err != nil {
			return err
		}
		encoded = append(encoded, data)
	}
	k := c.Key(key)
	pipe := c.client.TxPipeline()
	pipe.LPush(ctx, k, encoded...)
	if max > 0 {
		pipe.LTrim(ctx, k, 0, int64(max-1))
	}
	if ttl > 0 {
		pipe.Expire(ctx, k, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Range returns raw list entries between start and stop inclusive, newest first.
func (c *RedisCache) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return c.client.LRange(ctx, c.Key(key), start, stop).Result()
}

// RemoveMatching deletes every list entry for which match returns true and
// reports how many entries were removed.
func (c *RedisCache) RemoveMatching(ctx context.Context, key string, match func(raw string) bool) (int, error) {
	k := c.Key(key)
	raw, err := c.client.LRange(ctx, k, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{})
	pipe := c.client.TxPipeline()
	var cmds []*redis.IntCmd
	for _, r := range raw {
		if _, dup := seen[r]; dup || !match(r) {
			continue
		}
		seen[r] = struct{}{}
		cmds = append(cmds, pipe.LRem(ctx, k, 0, r))
	}
	if len(cmds) == 0 {
		return 0, nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	removed := 0
	for _, cmd := range cmds {
		removed += int(cmd.Val())
	}
	return removed, nil
}

// Publish sends value to a pub/sub channel under the prefix.
func (c *RedisCache) Publish(ctx context.Context, channel string, value interface{}) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, c.Key(channel), data).Err()
}

// Key returns the prefixed form of key.
func (c *RedisCache) Key(key string) string {
	if c.prefix == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", c.prefix, key)
}

func encode(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(value)
	}
}
