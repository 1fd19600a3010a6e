package httpx

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	redis "github.com/redis/go-redis/v9"
)

const rateKeyPrefix = "wavecall:ratelimit:"

// redisRateLimiter counts requests per fixed window in Redis so limits
// hold across api replicas. Redis being unreachable must never take the
// API down with it: every failure path falls open.
type redisRateLimiter struct {
	client  *redis.Client
	logger  *slog.Logger
	timeout time.Duration
}

// NewRedisRateLimiter connects and verifies the Redis instance before
// handing out the limiter.
func NewRedisRateLimiter(addr, password string, db int, logger *slog.Logger) (RateLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect rate limiter redis: %w", err)
	}
	return &redisRateLimiter{
		client:  client,
		logger:  logger,
		timeout: 250 * time.Millisecond,
	}, nil
}

func (rl *redisRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), rl.timeout)
	defer cancel()

	// INCR, expiry, and TTL run in one round trip. ExpireNX only arms the
	// window on the first hit, so later requests cannot push the reset
	// time forward.
	redisKey := rateKeyPrefix + key
	pipe := rl.client.Pipeline()
	counter := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, window)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		rl.fail("pipeline", err)
		return rateDecision{allowed: true}
	}

	reset := ttl.Val()
	if reset <= 0 {
		reset = window
	}
	return rateDecision{
		allowed:   counter.Val() <= int64(limit),
		count:     int(counter.Val()),
		windowEnd: time.Now().Add(reset),
	}
}

func (rl *redisRateLimiter) Close() {
	_ = rl.client.Close()
}

func (rl *redisRateLimiter) fail(op string, err error) {
	if rl.logger == nil {
		return
	}
	rl.logger.Error("redis rate limiter failure", "op", op, "error", err)
}
