package lock

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

var ErrNotObtained = errors.New("lock not obtained")

// Locker hands out short-lived distributed locks. A Locker built without a
// Redis client grants every lock immediately; callers still rely on their own
// row locks in that case.
type Locker struct {
	client *redislock.Client
	retry  redislock.RetryStrategy
}

func New(rdb *redis.Client) *Locker {
	l := &Locker{retry: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 5)}
	if rdb != nil {
		l.client = redislock.New(rdb)
	}
	return l
}

func (l *Locker) Enabled() bool {
	return l != nil && l.client != nil
}

// Obtain acquires key for ttl and returns the matching release func.
func (l *Locker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if !l.Enabled() {
		return func(context.Context) error { return nil }, nil
	}
	held, err := l.client.Obtain(ctx, key, ttl, &redislock.Options{RetryStrategy: l.retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		err := held.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			return nil
		}
		return err
	}, nil
}
