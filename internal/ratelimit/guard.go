package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Store increments fixed-window counters.
//
// Incr adds one to key and returns the new count. ttl is how long the
// counter must survive; it is applied when the key is first created.
type Store interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Decision is the outcome of one Check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns the wait until the current window closes, rounded up
// to whole seconds and never less than one.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	secs := (wait + time.Second - 1) / time.Second
	if secs < 1 {
		secs = 1
	}
	return secs * time.Second
}

// Guard applies fixed-window budgets on top of a Store.
type Guard struct {
	store Store
	now   func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock sets the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGuard creates a Guard over store.
func NewGuard(store Store, opts ...Option) *Guard {
	g := &Guard{store: store, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check records one hit for key and reports whether it fits in limit hits
// per window. On a store error the decision denies and the error is
// returned alongside it.
func (g *Guard) Check(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 || window <= 0 {
		return Decision{}, ErrInvalidBudget
	}

	now := g.now()
	bucket := now.UnixNano() / int64(window)
	resetAt := time.Unix(0, (bucket+1)*int64(window))
	d := Decision{Limit: limit, ResetAt: resetAt}

	ttl := resetAt.Sub(now)
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}

	count, err := g.store.Incr(ctx, key+":"+strconv.FormatInt(bucket, 10), ttl)
	if err != nil {
		return d, fmt.Errorf("checking %q: %w", key, err)
	}

	if count > int64(limit) {
		return d, nil
	}
	d.Allowed = true
	d.Remaining = limit - int(count)
	return d, nil
}
