// Package redisstore keeps the short-lived auth state in Redis: pending registrations and code-request counters.
package redisstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/nooracademy/noor/core"
)

// Open connects to Redis and waits for it to answer.
func Open(ctx context.Context, conf *core.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Address,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})

	var err error
	maxAttempts := 20
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		if err = client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}
	_ = client.Close()
	return nil, errors.Wrap(err, "redis ping timeout")
}

// wrapErr turns a closed client into a shutdown error, the app cannot serve without Redis.
func wrapErr(err error, msg string) error {
	if errors.Is(err, redis.ErrClosed) {
		return core.NewShutdownError(msg + ": " + err.Error())
	}
	return errors.Wrap(err, msg)
}

func key(prefix string, parts ...string) string {
	k := prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}
