package contract

import (
	"context"
	"time"
)

// RateLimiter is a fixed-window admission check. ok is false once limit
// calls have been made for key inside the current window; it never queues.
type RateLimiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (ok bool, err error)
}
