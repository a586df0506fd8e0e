package inmemdb

import (
	"context"
	"sync"
	"time"

	"github.com/nooracademy/noor/core/account"
)

type window struct {
	count int
	ends  time.Time
}

// requestLimiter is a fixed-window limiter; a limit <= 0 disables it.
type requestLimiter struct {
	mu      sync.Mutex
	limit   int
	period  time.Duration
	windows map[string]*window
}

var _ account.RequestLimiter = (*requestLimiter)(nil) // interface compliance check

func NewRequestLimiter(limit int, period time.Duration) *requestLimiter {
	return &requestLimiter{limit: limit, period: period, windows: make(map[string]*window)}
}

func (l *requestLimiter) Allow(_ context.Context, key string) error {
	if l.limit <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := NowFunc()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.ends) {
		w = &window{ends: now.Add(l.period)}
		l.windows[key] = w
	}
	w.count++
	if w.count > l.limit {
		return account.ErrRateLimited
	}
	return nil
}
