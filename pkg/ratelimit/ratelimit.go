package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	extratelimit "github.com/vnmchuo/ratelimiter"
)

// Limiter is a thin wrapper around github.com/vnmchuo/ratelimiter counting
// requests per caller over a one-minute window.
type Limiter struct {
	store extratelimit.Limiter
}

func NewLimiter(rdb *redis.Client, requestsPerMinute int64) *Limiter {
	store := extratelimit.NewRedisStore(rdb,
		extratelimit.WithLimit(int(requestsPerMinute)),
		extratelimit.WithWindow(time.Minute),
	)
	return &Limiter{store: store}
}

func NewTestLimiter(store extratelimit.Limiter) *Limiter {
	return &Limiter{store: store}
}

func key(callerID string) string {
	return fmt.Sprintf("ratelimit:caller:%s", callerID)
}

// Allow consumes one request from the caller's budget.
func (l *Limiter) Allow(ctx context.Context, callerID string) (bool, error) {
	res, err := l.store.Allow(ctx, key(callerID))
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

func (l *Limiter) Status(ctx context.Context, callerID string) (*extratelimit.Result, error) {
	return l.store.Status(ctx, key(callerID))
}
