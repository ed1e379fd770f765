// Package ratelimit provides per-caller token-bucket admission control.
// A denied acquisition is a normal outcome, not an error; callers are
// expected to back off and retry.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter tracks one token bucket per caller identity.
type Limiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	rate       float64 // tokens per second
	burst      int     // max tokens
	maxBuckets int     // max tracked callers (prevents memory exhaustion)
	now        func() time.Time
}

type bucket struct {
	tokens    float64
	lastSeen  time.Time
	updatedAt time.Time
}

// New creates a limiter with the given sustained rate (acquisitions per
// second) and burst capacity.
func New(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets:    make(map[string]*bucket),
		rate:       rate,
		burst:      burst,
		maxBuckets: 100000,
		now:        time.Now,
	}
}

// TryAcquire consumes one token from the caller's bucket. It returns false
// when the bucket is empty; the bucket never goes negative.
func (l *Limiter) TryAcquire(caller string) bool {
	_, _, allowed := l.Check(caller)
	return allowed
}

// Check consumes one token if available and reports the remaining tokens
// and, when denied, the seconds until the next token.
func (l *Limiter) Check(caller string) (remaining int, retryAfter float64, allowed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, exists := l.buckets[caller]
	if !exists {
		// Cap the number of tracked callers.
		if len(l.buckets) >= l.maxBuckets {
			return 0, 1.0 / l.rate, false
		}
		b = &bucket{
			tokens:    float64(l.burst) - 1, // consume one token for this acquisition
			updatedAt: now,
			lastSeen:  now,
		}
		l.buckets[caller] = b
		return int(b.tokens), 0, true
	}

	// Refill tokens based on elapsed time.
	elapsed := now.Sub(b.updatedAt).Seconds()
	b.tokens += elapsed * l.rate
	if b.tokens > float64(l.burst) {
		b.tokens = float64(l.burst)
	}
	b.updatedAt = now
	b.lastSeen = now

	if b.tokens < 1 {
		wait := (1 - b.tokens) / l.rate
		return 0, wait, false
	}

	b.tokens--
	return int(b.tokens), 0, true
}

// StartCleanup spawns a goroutine that removes stale buckets every interval.
// A bucket is stale if it has not been seen for longer than maxIdle.
// Returns a cancel function that stops the cleanup goroutine.
func (l *Limiter) StartCleanup(interval, maxIdle time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.cleanup(maxIdle)
			}
		}
	}()
	return cancel
}

func (l *Limiter) cleanup(maxIdle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-maxIdle)
	for caller, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, caller)
		}
	}
}

// Len returns the number of tracked caller buckets (for metrics and testing).
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
