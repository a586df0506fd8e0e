package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nooracademy/noor/core/account"
)

// requestLimiter is a fixed-window limiter: the counter is created with the window's TTL and INCR'd in the same transaction.
type requestLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

var _ account.RequestLimiter = (*requestLimiter)(nil) // interface compliance check

func NewRequestLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration) *requestLimiter {
	return &requestLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

func (l *requestLimiter) Allow(ctx context.Context, k string) error {
	if l.limit <= 0 {
		return nil
	}

	rk := key(l.prefix, "codereq", k)
	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, rk, 0, l.window) // opens the window
		incr = pipe.Incr(ctx, rk)
		return nil
	})
	if err != nil {
		return wrapErr(err, "counting code requests")
	}
	count := incr.Val()
	if count > int64(l.limit) {
		return account.ErrRateLimited
	}
	return nil
}
