package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/git-hulk/go-lock/locker/engine"
)

const compareAndDeleteLua = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`

var compareAndDeleteScript = redis.NewScript(compareAndDeleteLua)

// RedisSetArgser is the option-object form of a go-redis client: SET with a
// SetArgs struct carrying the NX mode and the expiry.
type RedisSetArgser interface {
	SetArgs(ctx context.Context, key string, value interface{}, a redis.SetArgs) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisDoer is the positional form, every command is sent as raw arguments.
type RedisDoer interface {
	Do(ctx context.Context, args ...interface{}) *redis.Cmd
}

// RedisStore implements engine.Store with the option-object SET form.
type RedisStore struct {
	client   RedisSetArgser
	scripter redis.Scripter
}

// NewRedisStore creates a RedisStore. Compare-and-delete is available only if
// the client is also a redis.Scripter, which holds for every go-redis client.
func NewRedisStore(c RedisSetArgser) *RedisStore {
	s := &RedisStore{client: c}
	if scripter, ok := c.(redis.Scripter); ok {
		s.scripter = scripter
	}
	return s
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	err := s.client.SetArgs(ctx, key, value, redis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *RedisStore) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	if s.scripter == nil {
		return false, engine.ErrMissingCapability
	}
	n, err := compareAndDeleteScript.Run(ctx, s.scripter, []string{key}, value).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return n == 1, nil
}

// LegacyRedisStore implements engine.Store with positional commands, for
// clients that only expose Do.
type LegacyRedisStore struct {
	client RedisDoer
}

// NewLegacyRedisStore creates a LegacyRedisStore.
func NewLegacyRedisStore(c RedisDoer) *LegacyRedisStore {
	return &LegacyRedisStore{client: c}
}

func (s *LegacyRedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	err := s.client.Do(ctx, "SET", key, value, "PX", formatMillis(ttl), "NX").Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *LegacyRedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Do(ctx, "DEL", key).Err()
}

func (s *LegacyRedisStore) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	n, err := s.client.Do(ctx, "EVAL", compareAndDeleteLua, 1, key, value).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return n == 1, nil
}

// formatMillis renders ttl for PX, Redis rejects a zero expiry so it is
// rounded up to one millisecond.
func formatMillis(ttl time.Duration) string {
	ms := ttl.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return strconv.FormatInt(ms, 10)
}
