package scheduler

import (
	"context"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// Locker grants exclusive runs across processes. TryLock fails fast when the
// lock is held elsewhere.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (unlock func(), err error)
}

// NopLocker always succeeds. It is used when no Redis is configured.
type NopLocker struct{}

func (NopLocker) TryLock(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}

type RedisLocker struct {
	rs *redsync.Redsync
}

func NewRedisLocker(rdb redis.UniversalClient) *RedisLocker {
	return &RedisLocker{rs: redsync.New(goredis.NewPool(rdb))}
}

func (l *RedisLocker) TryLock(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	mutex := l.rs.NewMutex(name, redsync.WithExpiry(ttl), redsync.WithTries(1))
	if err := mutex.LockContext(ctx); err != nil {
		return nil, err
	}
	return func() {
		if _, err := mutex.UnlockContext(context.Background()); err != nil {
			log.Warnf("[Scheduler] failed to release lock %s: %v", name, err)
		}
	}, nil
}
