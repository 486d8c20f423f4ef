package implementation

import (
	"context"
	"fmt"
	"time"

	"interview-copilot-be/internal/pkg/logger"
	"interview-copilot-be/internal/repository/contract"

	"github.com/redis/go-redis/v9"
)

const rateLimitPrefix = "copilot:rl:"

type RedisRateLimiter struct {
	rdb      *redis.Client
	fallback contract.RateLimiter
	logger   logger.ILogger
	clock    func() time.Time
}

// NewRedisRateLimiter counts with INCR + PEXPIRE on a per-window key. When a
// Redis call fails the check is answered by fallback instead.
func NewRedisRateLimiter(rdb *redis.Client, fallback contract.RateLimiter, log logger.ILogger) contract.RateLimiter {
	return &RedisRateLimiter{rdb: rdb, fallback: fallback, logger: log, clock: time.Now}
}

func (r *RedisRateLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	if window <= 0 {
		window = time.Minute
	}
	bucket := r.clock().UnixMilli() / window.Milliseconds()
	k := fmt.Sprintf("%s%s:%d", rateLimitPrefix, key, bucket)

	pipe := r.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.PExpire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn("RateLimiter", "Redis unavailable, using in-memory limiter", map[string]interface{}{
			"error": err.Error(),
			"key":   key,
		})
		if r.fallback == nil {
			return false, err
		}
		return r.fallback.Check(ctx, key, limit, window)
	}
	return incr.Val() <= int64(limit), nil
}
