package store

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"k8s.io/utils/clock"
)

type memoryEntry struct {
	value    string
	expireAt time.Time
}

// MemoryStore implements engine.Store in process memory. Expired keys are
// dropped lazily when they are next touched.
type MemoryStore struct {
	clock   clock.PassiveClock
	entries *xsync.MapOf[string, memoryEntry]
}

// NewMemoryStore creates a MemoryStore, a nil clock uses the wall clock.
func NewMemoryStore(c clock.PassiveClock) *MemoryStore {
	if c == nil {
		c = clock.RealClock{}
	}
	return &MemoryStore{
		clock:   c,
		entries: xsync.NewMapOf[string, memoryEntry](),
	}
}

func (s *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	now := s.clock.Now()
	set := false
	s.entries.Compute(key, func(old memoryEntry, loaded bool) (memoryEntry, bool) {
		if loaded && old.expireAt.After(now) {
			return old, false
		}
		set = true
		return memoryEntry{value: value, expireAt: now.Add(ttl)}, false
	})
	return set, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.entries.Delete(key)
	return nil
}

func (s *MemoryStore) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	now := s.clock.Now()
	deleted := false
	s.entries.Compute(key, func(old memoryEntry, loaded bool) (memoryEntry, bool) {
		if !loaded {
			return old, true
		}
		if !old.expireAt.After(now) {
			return old, true
		}
		deleted = old.value == value
		return old, deleted
	})
	return deleted, nil
}

// Get returns the live value of key.
func (s *MemoryStore) Get(key string) (string, bool) {
	entry, ok := s.entries.Load(key)
	if !ok || !entry.expireAt.After(s.clock.Now()) {
		return "", false
	}
	return entry.value, true
}
