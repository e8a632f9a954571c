package locker

import (
	"context"
	"fmt"
	"time"

	"github.com/git-hulk/go-lock/locker/metrics"
)

// Handle is the release capability of one acquisition, bound to the deadline
// computed when the lock was set.
type Handle struct {
	coordinator *Coordinator

	name     string
	key      string
	value    string
	deadline time.Time
}

// Name returns the lock name the handle was acquired for.
func (h *Handle) Name() string {
	return h.name
}

// Key returns the namespaced store key.
func (h *Handle) Key() string {
	return h.key
}

// Value returns the value written under the key.
func (h *Handle) Value() string {
	return h.value
}

// Deadline returns the time after which the lock is considered expired.
func (h *Handle) Deadline() time.Time {
	return h.deadline
}

// Release deletes the lock key if the deadline has not passed yet, and does
// nothing otherwise. The delete is unconditional unless the coordinator uses
// safe release, in which case ErrNotLockHolder is returned once the key holds
// another acquisition's value. Release is not idempotent: every call before
// the deadline issues a delete.
func (h *Handle) Release(ctx context.Context) error {
	c := h.coordinator
	if !h.deadline.After(c.clock.Now()) {
		c.counters.expired.Inc()
		metrics.ReleaseCounter.WithLabelValues(metrics.ReleaseExpired).Inc()
		return nil
	}

	if c.cad != nil {
		ok, err := c.cad.CompareAndDelete(ctx, h.key, h.value)
		if err != nil {
			metrics.ReleaseCounter.WithLabelValues(metrics.ReleaseFailed).Inc()
			return fmt.Errorf("release lock[%s]: %w", h.key, err)
		}
		if !ok {
			metrics.ReleaseCounter.WithLabelValues(metrics.ReleaseNotHeld).Inc()
			return ErrNotLockHolder
		}
	} else if err := c.store.Delete(ctx, h.key); err != nil {
		metrics.ReleaseCounter.WithLabelValues(metrics.ReleaseFailed).Inc()
		return fmt.Errorf("release lock[%s]: %w", h.key, err)
	}

	c.counters.released.Inc()
	metrics.ReleaseCounter.WithLabelValues(metrics.ReleaseDeleted).Inc()
	return nil
}

// ReleaseAsync runs Release in the background and passes its result to done,
// a nil done discards it.
func (h *Handle) ReleaseAsync(ctx context.Context, done func(error)) {
	if done == nil {
		done = func(error) {}
	}
	go func() {
		done(h.Release(ctx))
	}()
}
