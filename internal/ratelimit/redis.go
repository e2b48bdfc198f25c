package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/0xabdo/the-market/internal/logger"
)

// RedisCounter keeps each key's request instants in a sorted set scored
// by unix nanoseconds, so the sliding log is shared across instances.
// Any Redis failure degrades to allow: a broken counter must not deny
// service.
type RedisCounter struct {
	client    *redis.Client
	retention time.Duration
	now       func() time.Time
}

// NewRedisCounter connects to Redis using the given URL and verifies the
// connection before returning.
func NewRedisCounter(ctx context.Context, url string, retention time.Duration) (*RedisCounter, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisCounter{client: client, retention: retention, now: time.Now}, nil
}

func rateKey(key string) string {
	return "market:rate:" + key
}

// Allow implements Counter.
func (c *RedisCounter) Allow(ctx context.Context, key string, window time.Duration, max int) bool {
	rkey := rateKey(key)
	now := c.now()
	cutoff := strconv.FormatInt(now.Add(-window).UnixNano(), 10)

	pipe := c.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, rkey, "-inf", cutoff)
	card := pipe.ZCard(ctx, rkey)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.WithError(err).Warn("redis rate counter unavailable, admitting request")
		return true
	}

	if card.Val() >= int64(max) {
		return false
	}

	pipe = c.client.Pipeline()
	pipe.ZAdd(ctx, rkey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	pipe.Expire(ctx, rkey, c.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.WithError(err).Warn("redis rate counter write failed")
	}
	return true
}

// Count implements Counter.
func (c *RedisCounter) Count(ctx context.Context, key string, window time.Duration) int {
	rkey := rateKey(key)
	cutoff := strconv.FormatInt(c.now().Add(-window).UnixNano(), 10)

	n, err := c.client.ZCount(ctx, rkey, "("+cutoff, "+inf").Result()
	if err != nil {
		logger.WithError(err).Warn("redis rate counter count failed")
		return 0
	}
	return int(n)
}

// RetryAfter implements Counter. When Redis is unavailable the full
// window is returned as a conservative hint.
func (c *RedisCounter) RetryAfter(ctx context.Context, key string, window time.Duration) time.Duration {
	now := c.now()
	cutoff := strconv.FormatInt(now.Add(-window).UnixNano(), 10)

	vals, err := c.client.ZRangeByScoreWithScores(ctx, rateKey(key), &redis.ZRangeBy{
		Min: "(" + cutoff, Max: "+inf", Offset: 0, Count: 1,
	}).Result()
	if err != nil {
		logger.WithError(err).Warn("redis rate counter retry lookup failed")
		return window
	}
	if len(vals) == 0 {
		return 0
	}
	oldest := time.Unix(0, int64(vals[0].Score))
	return oldest.Add(window).Sub(now)
}

// Close releases the underlying Redis connection.
func (c *RedisCounter) Close() error {
	return c.client.Close()
}
