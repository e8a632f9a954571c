package engine

import (
	"context"
	"time"
)

// Store is the key-value capability a lock is coordinated through.
type Store interface {
	// SetNX sets key to value only if key is absent, with an expiry of ttl.
	// It reports whether the key was set.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Delete removes key unconditionally, a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// CompareAndDeleter is implemented by stores that can atomically delete a key
// only while it still holds the given value.
type CompareAndDeleter interface {
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}
