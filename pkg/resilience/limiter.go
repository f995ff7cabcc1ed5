package resilience

import (
	"errors"
	"sync"
	"time"
)

var ErrRateLimited = errors.New("rate limited")

// LimiterOpts configures the token bucket rate limiter.
type LimiterOpts struct {
	// Rate is the number of tokens added per second.
	Rate float64
	// Burst is the maximum number of tokens (bucket capacity).
	Burst int
}

// Limiter implements a token bucket rate limiter.
type Limiter struct {
	mu     sync.Mutex
	opts   LimiterOpts
	tokens float64
	last   time.Time
	now    func() time.Time
}

// NewLimiter creates a token bucket rate limiter.
func NewLimiter(opts LimiterOpts) *Limiter {
	return newLimiter(opts, time.Now)
}

func newLimiter(opts LimiterOpts, now func() time.Time) *Limiter {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Limiter{
		opts:   opts,
		tokens: float64(opts.Burst),
		now:    now,
	}
}

// Allow checks if a request is allowed (non-blocking).
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	if l.tokens >= 1 {
		l.tokens--
		return true
	}
	return false
}

// full reports whether the bucket has refilled to capacity.
func (l *Limiter) full() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	return l.tokens >= float64(l.opts.Burst)
}

// refill adds tokens based on elapsed time. Must hold mu.
func (l *Limiter) refill() {
	now := l.now()
	if l.last.IsZero() {
		l.last = now
		return
	}
	elapsed := now.Sub(l.last).Seconds()
	l.tokens += elapsed * l.opts.Rate
	if l.tokens > float64(l.opts.Burst) {
		l.tokens = float64(l.opts.Burst)
	}
	l.last = now
}

// KeyedLimiter keeps one token bucket per key, e.g. per browser session.
type KeyedLimiter struct {
	mu       sync.Mutex
	opts     LimiterOpts
	buckets  map[string]*Limiter
	now      func() time.Time
	sweepAt  int
	sweepGap int
}

// NewKeyedLimiter creates a KeyedLimiter. Buckets that have refilled are
// dropped every few hundred calls so idle keys do not accumulate.
func NewKeyedLimiter(opts LimiterOpts) *KeyedLimiter {
	return &KeyedLimiter{
		opts:     opts,
		buckets:  make(map[string]*Limiter),
		now:      time.Now,
		sweepGap: 256,
	}
}

// Allow takes a token from key's bucket.
func (k *KeyedLimiter) Allow(key string) bool {
	k.mu.Lock()
	l, ok := k.buckets[key]
	if !ok {
		l = newLimiter(k.opts, k.now)
		k.buckets[key] = l
	}
	k.sweepAt++
	if k.sweepAt >= k.sweepGap {
		k.sweepAt = 0
		for other, b := range k.buckets {
			if b != l && b.full() {
				delete(k.buckets, other)
			}
		}
	}
	k.mu.Unlock()
	return l.Allow()
}

// Len returns the number of tracked keys.
func (k *KeyedLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}
