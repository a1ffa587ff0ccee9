package collector

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"PriceSentinel/internal/model"
)

const redisKeyPrefix = "sentinel:quote:"

// RedisQuoteCache shares quotes between processes. Redis expiry enforces the TTL.
type RedisQuoteCache struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewRedisQuoteCache creates a cache on top of an existing client.
func NewRedisQuoteCache(client *redis.Client, ttl time.Duration, log zerolog.Logger) *RedisQuoteCache {
	if ttl <= 0 {
		ttl = DefaultQuoteTTL
	}
	return &RedisQuoteCache{client: client, ttl: ttl, log: log.With().Str("component", "redis_cache").Logger()}
}

func (c *RedisQuoteCache) Get(ctx context.Context, symbol string) (*model.Quote, bool) {
	data, err := c.client.Get(ctx, redisKeyPrefix+symbol).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("quote cache read failed")
		}
		return nil, false
	}
	var q model.Quote
	if err := json.Unmarshal(data, &q); err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("quote cache entry corrupt")
		return nil, false
	}
	return &q, true
}

func (c *RedisQuoteCache) Set(ctx context.Context, symbol string, q *model.Quote) {
	if q == nil {
		return
	}
	data, err := json.Marshal(q)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+symbol, data, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("quote cache write failed")
	}
}
