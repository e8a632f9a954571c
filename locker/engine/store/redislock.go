package store

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/redis/go-redis/v9"
)

var deleteScript = redis.NewScript(`return redis.call("DEL", KEYS[1])`)

// obtainTimeout bounds a single Obtain. Without a deadline on ctx, redislock
// would use the ttl itself, which fails every attempt for very short ttls.
const obtainTimeout = 3 * time.Second

// RedisLockStore implements engine.Store on top of redislock, the lock value
// is used as the redislock token.
type RedisLockStore struct {
	scripter redis.Scripter
	client   *redislock.Client

	// locks keeps the last obtained lock per key, so that compare-and-delete
	// can go through redislock's own release.
	locks *xsync.MapOf[string, *redislock.Lock]
}

// NewRedisLockStore creates a RedisLockStore.
func NewRedisLockStore(c redislock.RedisClient) *RedisLockStore {
	return &RedisLockStore{
		scripter: c,
		client:   redislock.New(c),
		locks:    xsync.NewMapOf[string, *redislock.Lock](),
	}
}

func (s *RedisLockStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	// redislock sends the ttl in whole milliseconds
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, obtainTimeout)
		defer cancel()
	}
	lock, err := s.client.Obtain(ctx, key, ttl, &redislock.Options{
		Token: value,
		// No retry strategy, the coordinator paces the retries
		RetryStrategy: redislock.NoRetry(),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return false, nil
		}
		return false, err
	}
	s.locks.Store(key, lock)
	return true, nil
}

func (s *RedisLockStore) Delete(ctx context.Context, key string) error {
	s.locks.Delete(key)
	err := deleteScript.Run(ctx, s.scripter, []string{key}).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func (s *RedisLockStore) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	lock, ok := s.locks.Load(key)
	if !ok || lock.Token() != value {
		n, err := compareAndDeleteScript.Run(ctx, s.scripter, []string{key}, value).Int64()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return false, nil
			}
			return false, err
		}
		return n == 1, nil
	}

	s.locks.Compute(key, func(old *redislock.Lock, loaded bool) (*redislock.Lock, bool) {
		// keep a newer lock stored by a concurrent SetNX
		return old, !loaded || old == lock
	})
	if err := lock.Release(ctx); err != nil {
		if errors.Is(err, redislock.ErrLockNotHeld) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
