// Package ratelimit provides process-local token buckets keyed by caller. Each server
// instance keeps its own buckets, so limits are approximate when several instances
// serve traffic.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Clock returns the current instant.
type Clock func() time.Time

// TokenBucket limits actions per identity with one rate.Limiter each.
type TokenBucket struct {
	mu       sync.Mutex
	capacity int
	refill   rate.Limit
	clock    Clock
	limiters map[string]*rate.Limiter
}

// New creates a limiter holding capacity tokens per identity, refilled at refillPerSecond.
func New(capacity int, refillPerSecond float64, clock Clock) *TokenBucket {
	if capacity <= 0 {
		capacity = 10
	}
	if refillPerSecond <= 0 {
		refillPerSecond = 1
	}
	if clock == nil {
		clock = time.Now
	}
	return &TokenBucket{
		capacity: capacity,
		refill:   rate.Limit(refillPerSecond),
		clock:    clock,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *TokenBucket) limiter(identity string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[identity]
	if !ok {
		limiter = rate.NewLimiter(l.refill, l.capacity)
		l.limiters[identity] = limiter
	}
	return limiter
}

// Allow consumes one token for identity, reporting whether one was available.
func (l *TokenBucket) Allow(identity string) bool {
	return l.limiter(identity).AllowN(l.clock(), 1)
}

// Prune drops limiters that have fully refilled, bounding memory for one-off callers.
func (l *TokenBucket) Prune() int {
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for identity, limiter := range l.limiters {
		if limiter.TokensAt(now) >= float64(l.capacity) {
			delete(l.limiters, identity)
			removed++
		}
	}
	return removed
}

// Size reports how many identities currently hold a limiter.
func (l *TokenBucket) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
