package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxKeys is the MemoryStore ceiling used when none is given.
const DefaultMaxKeys = 100_000

type bucket struct {
	count   int64
	expires time.Time
}

// MemoryStore keeps counters in process memory. It holds at most maxKeys
// buckets; expired buckets are swept only when an insert hits the ceiling.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	maxKeys int
	now     func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock sets the time source used for bucket expiry.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates a MemoryStore holding at most maxKeys buckets.
// A non-positive maxKeys selects DefaultMaxKeys.
func NewMemoryStore(maxKeys int, opts ...MemoryOption) *MemoryStore {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	s := &MemoryStore{
		buckets: make(map[string]*bucket),
		maxKeys: maxKeys,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Incr implements Store. A new key beyond the ceiling fails with
// ErrCapacity; existing keys keep counting.
func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if b, ok := s.buckets[key]; ok {
		if now.Before(b.expires) {
			b.count++
			return b.count, nil
		}
		b.count = 1
		b.expires = now.Add(ttl)
		return 1, nil
	}

	if len(s.buckets) >= s.maxKeys {
		s.sweepLocked(now)
		if len(s.buckets) >= s.maxKeys {
			return 0, ErrCapacity
		}
	}

	s.buckets[key] = &bucket{count: 1, expires: now.Add(ttl)}
	return 1, nil
}

// Len returns the number of buckets held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

func (s *MemoryStore) sweepLocked(now time.Time) {
	for k, b := range s.buckets {
		if !now.Before(b.expires) {
			delete(s.buckets, k)
		}
	}
}
