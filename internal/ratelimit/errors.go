package ratelimit

import "errors"

var (
	// ErrCapacity is returned by MemoryStore when a new key would exceed
	// its ceiling and no expired buckets could be swept.
	ErrCapacity = errors.New("ratelimit: store at capacity")

	// ErrStoreUnavailable wraps backend failures of RedisStore.
	ErrStoreUnavailable = errors.New("ratelimit: store unavailable")

	// ErrInvalidBudget is returned for a non-positive limit or window.
	ErrInvalidBudget = errors.New("ratelimit: limit and window must be positive")
)
