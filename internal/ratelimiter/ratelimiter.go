package ratelimiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles events with a token bucket.
//
// The adapter uses one instance to pace the accept loop and a KeyedLimiter
// to stop a single client from reconnecting in a tight loop.
//
// A zero rate means unlimited: Allow always succeeds and Wait never blocks.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter allowing perSecond events with the given burst.
//
// A burst below one is raised to one so a positive rate can make progress.
func New(perSecond float64, burst int) *RateLimiter {
	if perSecond <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow reports whether an event may happen now, consuming a token if so.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Unlimited reports whether the limiter was built with a zero rate.
func (r *RateLimiter) Unlimited() bool {
	return r.limiter.Limit() == rate.Inf
}

// Tokens returns the currently available tokens. Intended for tests and debugging.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}

// ============================================================================
// Per-key limiting
// ============================================================================

type keyedEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter keeps one token bucket per key (a client IP in practice).
// Buckets idle for longer than the idle timeout are dropped by Prune.
type KeyedLimiter struct {
	mu        sync.Mutex
	perSecond float64
	burst     int
	idle      time.Duration
	entries   map[string]*keyedEntry
	now       func() time.Time
}

// NewKeyed creates a KeyedLimiter. A zero perSecond disables limiting.
func NewKeyed(perSecond float64, burst int, idle time.Duration) *KeyedLimiter {
	if burst < 1 {
		burst = 1
	}
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &KeyedLimiter{
		perSecond: perSecond,
		burst:     burst,
		idle:      idle,
		entries:   make(map[string]*keyedEntry),
		now:       time.Now,
	}
}

// Allow reports whether key may perform one more event now.
func (k *KeyedLimiter) Allow(key string) bool {
	if k.perSecond <= 0 {
		return true
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{limiter: rate.NewLimiter(rate.Limit(k.perSecond), k.burst)}
		k.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Prune drops buckets not used within the idle timeout and returns how many were removed.
func (k *KeyedLimiter) Prune() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	cutoff := k.now().Add(-k.idle)
	removed := 0
	for key, e := range k.entries {
		if e.lastSeen.Before(cutoff) {
			delete(k.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (k *KeyedLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
