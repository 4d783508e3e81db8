// Package ratelimit implements a fixed-window request guard.
//
// A Guard counts hits per key inside windows aligned to the Unix epoch:
// the counter for key k at time t lives under "k:floor(t/window)". The
// counter store is injected; MemoryStore serves a single instance and
// RedisStore shares counters across instances.
//
// The guard fails closed. A store error or a full MemoryStore denies the
// request rather than letting it through unmetered.
package ratelimit
