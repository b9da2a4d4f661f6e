package service

import (
	"context"
	"fmt"
	"time"

	"classjudge/internal/common/cache"
	"classjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultSubmitWindow = time.Minute
	defaultSubmitLimit  = 6
)

// RateLimiter bounds how often one user may submit.
type RateLimiter interface {
	Allow(ctx context.Context, userID int64) (bool, error)
}

// RedisRateLimiter is a fixed-window counter per user. Redis trouble fails
// open: a broken cache must not block submissions.
type RedisRateLimiter struct {
	cache  cache.Cache
	window time.Duration
	limit  int64
}

func NewRedisRateLimiter(cacheClient cache.Cache, window time.Duration, limit int64) *RedisRateLimiter {
	if window <= 0 {
		window = defaultSubmitWindow
	}
	if limit <= 0 {
		limit = defaultSubmitLimit
	}
	return &RedisRateLimiter{cache: cacheClient, window: window, limit: limit}
}

func (r *RedisRateLimiter) Allow(ctx context.Context, userID int64) (bool, error) {
	window := time.Now().Unix() / int64(r.window.Seconds())
	key := fmt.Sprintf("submit:rate:%d:%d", userID, window)

	count, err := r.cache.Incr(ctx, key)
	if err != nil {
		logger.Warn(ctx, "rate limiter unavailable, allowing request", zap.Error(err))
		return true, nil
	}
	if count == 1 {
		_ = r.cache.Expire(ctx, key, r.window)
	}
	return count <= r.limit, nil
}

var _ RateLimiter = (*RedisRateLimiter)(nil)
