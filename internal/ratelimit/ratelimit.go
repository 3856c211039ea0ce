// Package ratelimit implements the per-client token bucket of spec §4.4
// using golang.org/x/time/rate, grounded on rubicon-ClaraVerse's
// per-domain/per-user sync.Map-of-limiters pattern
// (scraper_ratelimit.go) rather than a hand-rolled bucket.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/odoomcp/gateway/internal/gwerr"
)

// Limiter is a per-client-key token bucket with idle-bucket eviction.
type Limiter struct {
	rps      float64
	burst    int
	maxWait  time.Duration
	disabled bool

	mu       sync.Mutex
	buckets  map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New builds a Limiter. requestsPerMinute <= 0 disables limiting
// (Allow always succeeds). maxWait bounds how long Wait will block;
// Allow never blocks. 0 means never wait.
func New(requestsPerMinute float64, maxWait time.Duration) *Limiter {
	l := &Limiter{
		maxWait: maxWait,
		buckets: make(map[string]*bucket),
	}
	if requestsPerMinute <= 0 {
		l.disabled = true
		return l
	}
	l.rps = requestsPerMinute / 60.0
	l.burst = int(requestsPerMinute)
	if l.burst < 1 {
		l.burst = 1
	}
	return l
}

func (l *Limiter) bucketFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.rps), l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = time.Now()
	return b.limiter
}

// Allow reports whether key may proceed immediately. When denied, the
// second return value is the wait until the next token would be
// available.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	if l.disabled {
		return true, 0
	}
	lim := l.bucketFor(key)
	r := lim.Reserve()
	if !r.OK() {
		return false, 0
	}
	delay := r.Delay()
	if delay <= 0 {
		return true, 0
	}
	r.Cancel()
	return false, delay
}

// Wait blocks up to maxWait for a token, or returns a KindRateLimit error
// carrying the remaining wait. If maxWait is 0, it behaves like Allow.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if l.disabled {
		return nil
	}
	ok, retryAfter := l.Allow(key)
	if ok {
		return nil
	}
	if l.maxWait <= 0 || retryAfter > l.maxWait {
		return gwerr.RateLimit(retryAfter.Seconds())
	}
	timer := time.NewTimer(retryAfter)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Evict removes buckets untouched for longer than idle, bounding memory
// growth from a long tail of one-shot client keys.
func (l *Limiter) Evict(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	n := 0
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > idle {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}

// StartEvictionLoop periodically calls Evict until ctx is cancelled.
func (l *Limiter) StartEvictionLoop(ctx context.Context, interval, idle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Evict(idle)
			case <-ctx.Done():
				return
			}
		}
	}()
}
