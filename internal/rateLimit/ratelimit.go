package rateLimit

import (
	"context"
	"time"

	redisadapter "github.com/robertarktes/tour-booking-dashboard/internal/adapters/redis"
	"github.com/robertarktes/tour-booking-dashboard/internal/observability"
)

// RateLimiter is a fixed-window counter per key kept in redis. When redis
// cannot be reached requests are let through.
type RateLimiter struct {
	redis  *redisadapter.Cache
	rate   int
	period time.Duration
	logger observability.Logger
}

func NewRateLimiter(redis *redisadapter.Cache, perMinute int, logger observability.Logger) *RateLimiter {
	return &RateLimiter{redis: redis, rate: perMinute, period: time.Minute, logger: logger}
}

func (rl *RateLimiter) Allow(ctx context.Context, key string) bool {
	if rl.rate <= 0 {
		return true
	}
	fullKey := "rl:" + key

	pipe := rl.redis.Client().Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, rl.period)

	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.WithField("key", fullKey).Warn("rate limit check failed: " + err.Error())
		return true
	}

	if incr.Val() > int64(rl.rate) {
		observability.RateLimitExceeded.Inc()
		return false
	}
	return true
}
