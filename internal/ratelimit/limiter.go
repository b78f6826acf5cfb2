// Package ratelimit provides per-client token bucket rate limiting for the
// pricing API.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// DefaultMaxKeys bounds the number of tracked clients.
const DefaultMaxKeys = 10000

// Config configures rate limiting behavior.
type Config struct {
	// RequestsPerSecond is the sustained rate allowed per client. Zero
	// disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// Burst is the maximum number of requests allowed at once. It defaults
	// to twice RequestsPerSecond.
	Burst int `yaml:"burst"`
}

// Enabled reports whether c limits anything.
func (c Config) Enabled() bool {
	return c.RequestsPerSecond > 0
}

// bucket is a token bucket. Callers hold the limiter lock.
type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// Limiter tracks one bucket per client key.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   float64
	maxKeys int
	now     func() time.Time
}

// New returns a limiter for cfg, or nil when cfg is disabled. A nil
// *Limiter allows every request.
func New(cfg Config) *Limiter {
	if !cfg.Enabled() {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = max(int(math.Ceil(cfg.RequestsPerSecond*2)), 1)
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    cfg.RequestsPerSecond,
		burst:   float64(burst),
		maxKeys: DefaultMaxKeys,
		now:     time.Now,
	}
}

// Allow consumes a token for key. When the bucket is empty it returns false
// and how long until the next token.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= l.maxKeys {
			l.prune(now)
		}
		b = &bucket{tokens: l.burst, lastRefill: now}
		l.buckets[key] = b
	}
	l.refill(b, now)

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	wait := time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
	return false, wait
}

func (l *Limiter) refill(b *bucket, now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.lastRefill = now
	b.tokens = min(b.tokens+elapsed*l.rate, l.burst)
}

// prune drops clients whose buckets have refilled, then the rest if the
// map is still full.
func (l *Limiter) prune(now time.Time) {
	for key, b := range l.buckets {
		l.refill(b, now)
		if b.tokens >= l.burst {
			delete(l.buckets, key)
		}
	}
	if len(l.buckets) >= l.maxKeys {
		clear(l.buckets)
	}
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
