package locker

import (
	"bytes"
	"context"
	"log"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/git-hulk/go-lock/internal"
	"github.com/git-hulk/go-lock/locker/engine/store"
)

func newRedisCoordinator(t *testing.T, opts ...Option) (*miniredis.Miniredis, *Coordinator) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	c, err := NewWithClient(client, opts...)
	require.NoError(t, err)
	return mr, c
}

func TestRedisLockAndRelease(t *testing.T) {
	mr, c := newRedisCoordinator(t)
	ctx := context.Background()

	handleCh := make(chan *Handle, 1)
	require.NoError(t, c.Lock(ctx, "foo", time.Second, func(h *Handle) {
		handleCh <- h
	}))
	var h *Handle
	select {
	case h = <-handleCh:
	case <-time.After(time.Second):
		t.Fatal("critical section was not invoked")
	}

	require.Equal(t, time.Second, mr.TTL("lock.foo"))
	value, err := mr.Get("lock.foo")
	require.NoError(t, err)
	require.Equal(t, strconv.FormatInt(h.Deadline().UnixMilli(), 10), value)
	require.Equal(t, int64(1), c.Stats().Attempts)

	require.NoError(t, h.Release(ctx))
	require.False(t, mr.Exists("lock.foo"))
}

func TestRedisLockRetriesWhileHeld(t *testing.T) {
	mr, c := newRedisCoordinator(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("lock.foo", "someone-else"))

	acquired := atomic.NewBool(false)
	start := time.Now()
	require.NoError(t, c.Lock(ctx, "foo", time.Second, func(h *Handle) {
		acquired.Store(true)
		_ = h.Release(ctx)
	}))
	require.Eventually(t, func() bool {
		return c.Stats().Attempts >= 2
	}, time.Second, 5*time.Millisecond)
	require.True(t, time.Since(start) >= DefaultRetryDelay)
	require.False(t, acquired.Load())

	mr.Del("lock.foo")
	require.Eventually(t, acquired.Load, time.Second, 5*time.Millisecond)
}

func TestNewRejectsNilClients(t *testing.T) {
	_, err := NewWithClient((*redis.Client)(nil))
	require.ErrorIs(t, err, ErrMissingCapability)
	_, err = New((*store.MemoryStore)(nil))
	require.ErrorIs(t, err, ErrMissingCapability)
}

func TestSetLogger(t *testing.T) {
	prev := internal.GetLogger()
	t.Cleanup(func() {
		internal.SetLogger(prev)
	})
	var buf bytes.Buffer
	SetLogger(log.New(&buf, "", 0))

	s := newCountingStore(store.NewMemoryStore(nil))
	s.failures = 1
	c, err := New(s, WithRetryDelay(time.Millisecond))
	require.NoError(t, err)
	ctx := context.Background()

	h, err := c.Acquire(ctx, "flaky", time.Second)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "Failed to try lock[lock.flaky], err: connection reset")
	require.NoError(t, h.Release(ctx))

	SetLogger(nil)
	s.failures = 1
	buf.Reset()
	h, err = c.Acquire(ctx, "flaky", time.Second)
	require.NoError(t, err)
	require.Empty(t, buf.String())
	require.NoError(t, h.Release(ctx))
}
