package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"interview-copilot-be/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

// RateLimiter keeps fixed-window counters in process memory. Used when Redis
// is unavailable, so limits are per instance.
type RateLimiter struct {
	mu    sync.Mutex
	cache *cache.Cache
	clock func() time.Time
}

var _ contract.RateLimiter = (*RateLimiter)(nil)

func NewRateLimiter(clock func() time.Time) *RateLimiter {
	if clock == nil {
		clock = time.Now
	}
	// expired windows are purged every minute
	return &RateLimiter{
		cache: cache.New(time.Minute, time.Minute),
		clock: clock,
	}
}

func windowKey(key string, window time.Duration, now time.Time) string {
	bucket := now.UnixMilli() / window.Milliseconds()
	return fmt.Sprintf("%s:%d", key, bucket)
}

func (r *RateLimiter) Check(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	if window <= 0 {
		window = time.Minute
	}
	k := windowKey(key, window, r.clock())

	r.mu.Lock()
	defer r.mu.Unlock()

	count := 1
	if v, found := r.cache.Get(k); found {
		count = v.(int) + 1
	}
	r.cache.Set(k, count, window)
	return count <= limit, nil
}
