package arbiter

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Cache stores successful decisions keyed by normalized nickname.
// A miss is (Decision{}, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) (Decision, bool, error)
	Set(ctx context.Context, key string, d Decision) error
}

type MemCache struct {
	data *expirable.LRU[string, Decision]
}

var _ Cache = (*MemCache)(nil)

func NewMemCache(capacity int, ttl time.Duration) *MemCache {
	if capacity <= 0 {
		capacity = 10_000
	}
	return &MemCache{data: expirable.NewLRU[string, Decision](capacity, nil, ttl)}
}

func (c *MemCache) Get(_ context.Context, key string) (Decision, bool, error) {
	d, ok := c.data.Get(key)
	return d, ok, nil
}

func (c *MemCache) Set(_ context.Context, key string, d Decision) error {
	c.data.Add(key, d)
	return nil
}

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache parses redisURL and checks the connection.
func NewRedisCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return NewRedisCacheClient(rdb, ttl), nil
}

func NewRedisCacheClient(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func redisKey(key string) string { return "nickguard:ai:" + key }

func (c *RedisCache) Get(ctx context.Context, key string) (Decision, bool, error) {
	raw, err := c.rdb.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Decision{}, false, nil
	}
	if err != nil {
		return Decision{}, false, err
	}
	var d Decision
	if err := json.Unmarshal(raw, &d); err != nil {
		return Decision{}, false, err
	}
	return d, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, d Decision) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, redisKey(key), raw, c.ttl).Err()
}

func (c *RedisCache) Close() error { return c.rdb.Close() }
