package locker

import (
	"time"

	"k8s.io/utils/clock"

	"github.com/git-hulk/go-lock/internal"
)

// SetLogger replaces the logger of coordinators and stores, a nil logger
// discards the output. *log.Logger satisfies it.
func SetLogger(l internal.Logging) {
	internal.SetLogger(l)
}

type Option func(c *Coordinator)

// WithRetryDelay sets the pause between failed attempts, a non-positive
// delay keeps DefaultRetryDelay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.retryDelay = d
		}
	}
}

// WithDefaultTTL sets the TTL used when a caller passes a zero TTL.
func WithDefaultTTL(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.defaultTTL = d
		}
	}
}

// WithClock sets the clock used for deadlines and retry timers.
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithSafeRelease makes Release delete the key only while it still holds the
// value written by this acquisition. The store must implement
// engine.CompareAndDeleter.
func WithSafeRelease() Option {
	return func(c *Coordinator) {
		c.safeRelease = true
	}
}
