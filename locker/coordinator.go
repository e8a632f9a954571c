package locker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"k8s.io/utils/clock"

	"github.com/git-hulk/go-lock/internal"
	"github.com/git-hulk/go-lock/locker/engine"
	"github.com/git-hulk/go-lock/locker/engine/store"
	"github.com/git-hulk/go-lock/locker/metrics"
)

const (
	DefaultTTL        = 5 * time.Second
	DefaultRetryDelay = 50 * time.Millisecond

	// KeyPrefix namespaces lock keys from other keys in the store.
	KeyPrefix = "lock."
)

// CriticalSection runs once the lock is held, h releases it.
type CriticalSection func(h *Handle)

type counters struct {
	attempts    atomic.Int64
	retries     atomic.Int64
	acquired    atomic.Int64
	storeErrors atomic.Int64
	released    atomic.Int64
	expired     atomic.Int64
}

// Stats is a snapshot of a coordinator's counters.
type Stats struct {
	Attempts        int64
	Retries         int64
	Acquired        int64
	StoreErrors     int64
	Released        int64
	ExpiredReleases int64
}

// Coordinator serializes access to named critical sections through a shared
// store. Waiters are not queued, every waiter races on each of its retries.
type Coordinator struct {
	store      engine.Store
	cad        engine.CompareAndDeleter
	clock      clock.Clock
	retryDelay time.Duration
	defaultTTL time.Duration

	safeRelease bool

	counters counters
}

// New is used to create a coordinator on top of store s.
func New(s engine.Store, opts ...Option) (*Coordinator, error) {
	if store.IsNil(s) {
		return nil, fmt.Errorf("%w: nil store", ErrMissingCapability)
	}
	c := &Coordinator{
		store:      s,
		clock:      clock.RealClock{},
		retryDelay: DefaultRetryDelay,
		defaultTTL: DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.safeRelease {
		cad, ok := s.(engine.CompareAndDeleter)
		if !ok {
			return nil, fmt.Errorf("%w: %T cannot compare-and-delete", ErrMissingCapability, s)
		}
		c.cad = cad
	}
	return c, nil
}

// NewWithClient is used to create a coordinator from a raw store client, the
// adapter is selected once by store.Detect.
func NewWithClient(client any, opts ...Option) (*Coordinator, error) {
	s, err := store.Detect(client)
	if err != nil {
		return nil, err
	}
	return New(s, opts...)
}

// RetryDelay returns the pause between failed attempts.
func (c *Coordinator) RetryDelay() time.Duration {
	return c.retryDelay
}

// Lock is used to run fn under the lock name. It validates its arguments,
// starts acquiring in the background and returns at once. fn is invoked
// exactly once after the lock is acquired, and never if ctx ends first.
// A zero ttl selects the default TTL.
func (c *Coordinator) Lock(ctx context.Context, name string, ttl time.Duration, fn CriticalSection) error {
	key, ttl, err := c.prepare(name, ttl)
	if err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("%w: critical section is required", ErrInvalidArgument)
	}

	go func() {
		h, err := c.acquire(ctx, name, key, ttl)
		if err != nil {
			internal.GetLogger().Printf("Gave up lock[%s], err: %v", key, err)
			return
		}
		fn(h)
	}()
	return nil
}

// LockDefault is Lock with the default TTL.
func (c *Coordinator) LockDefault(ctx context.Context, name string, fn CriticalSection) error {
	return c.Lock(ctx, name, 0, fn)
}

// Acquire is used to block until the lock name is held or ctx ends.
func (c *Coordinator) Acquire(ctx context.Context, name string, ttl time.Duration) (*Handle, error) {
	key, ttl, err := c.prepare(name, ttl)
	if err != nil {
		return nil, err
	}
	return c.acquire(ctx, name, key, ttl)
}

// Stats returns a snapshot of the coordinator's counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Attempts:        c.counters.attempts.Load(),
		Retries:         c.counters.retries.Load(),
		Acquired:        c.counters.acquired.Load(),
		StoreErrors:     c.counters.storeErrors.Load(),
		Released:        c.counters.released.Load(),
		ExpiredReleases: c.counters.expired.Load(),
	}
}

func (c *Coordinator) prepare(name string, ttl time.Duration) (string, time.Duration, error) {
	if name == "" {
		return "", 0, fmt.Errorf("%w: lock name is required", ErrInvalidArgument)
	}
	if ttl < 0 {
		return "", 0, fmt.Errorf("%w: negative ttl %s", ErrInvalidArgument, ttl)
	}
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	return KeyPrefix + name, ttl, nil
}

// acquire attempts the conditional set until it succeeds or ctx ends.
// Contention and store errors are retried alike after the retry delay.
func (c *Coordinator) acquire(ctx context.Context, name, key string, ttl time.Duration) (*Handle, error) {
	start := c.clock.Now()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		h, err := c.attempt(ctx, name, key, ttl)
		if err != nil {
			c.counters.storeErrors.Inc()
			metrics.StoreErrorCounter.Inc()
			internal.GetLogger().Printf("Failed to try lock[%s], err: %v", key, err)
		}
		if h != nil {
			c.counters.acquired.Inc()
			metrics.AcquiredCounter.Inc()
			metrics.WaitHistogram.Observe(c.clock.Since(start).Seconds())
			return h, nil
		}

		c.counters.retries.Inc()
		metrics.RetryCounter.Inc()
		timer := c.clock.NewTimer(c.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C():
		}
	}
}

// attempt issues one conditional set, a nil handle without error means the
// key is held by someone else.
func (c *Coordinator) attempt(ctx context.Context, name, key string, ttl time.Duration) (*Handle, error) {
	c.counters.attempts.Inc()
	metrics.AttemptCounter.Inc()

	// the extra millisecond keeps the deadline strictly past the expiry
	deadline := c.clock.Now().Add(ttl + time.Millisecond)
	value := strconv.FormatInt(deadline.UnixMilli(), 10)
	if c.safeRelease {
		value += ":" + uuid.NewString()
	}

	ok, err := c.store.SetNX(ctx, key, value, ttl)
	if err != nil || !ok {
		return nil, err
	}
	return &Handle{
		coordinator: c,
		name:        name,
		key:         key,
		value:       value,
		deadline:    deadline,
	}, nil
}
