// Package metrics exposes Prometheus collectors for lock coordinators.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	ReleaseDeleted = "deleted"
	ReleaseExpired = "expired"
	ReleaseNotHeld = "not_held"
	ReleaseFailed  = "failed"
)

var (
	// AttemptCounter tracks conditional-set attempts.
	AttemptCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "golock_attempts_total",
		Help: "Total number of lock acquisition attempts",
	})
	// RetryCounter tracks attempts that were rescheduled.
	RetryCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "golock_retries_total",
		Help: "Total number of scheduled lock acquisition retries",
	})
	// AcquiredCounter tracks successful acquisitions.
	AcquiredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "golock_acquired_total",
		Help: "Total number of acquired locks",
	})
	// StoreErrorCounter tracks store errors folded into the retry path.
	StoreErrorCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "golock_store_errors_total",
		Help: "Total number of store errors during acquisition",
	})
	// ReleaseCounter tracks releases by outcome.
	ReleaseCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "golock_releases_total",
		Help: "Total number of lock releases by result",
	}, []string{"result"})
	// WaitHistogram observes the time from the first attempt to acquisition.
	WaitHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "golock_acquire_wait_seconds",
		Help:    "Time spent waiting for a lock",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})
)

// Register registers the lock metrics on the provided registry.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(AttemptCounter, RetryCounter, AcquiredCounter, StoreErrorCounter, ReleaseCounter, WaitHistogram)
}
