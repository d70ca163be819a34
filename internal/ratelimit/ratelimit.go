// Package ratelimit provides a keyed token-bucket rate limiter.
// Each unique key (typically a client IP) gets its own limiter; idle
// limiters are dropped after a TTL so the map cannot grow unbounded.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterEntry wraps a rate.Limiter with last-access tracking for TTL cleanup.
type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// KeyedRateLimiter manages per-key rate limiting.
type KeyedRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	ttl      time.Duration

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a keyed rate limiter allowing rps requests per second
// with the given burst. Limiters idle for over ten minutes are reaped.
func New(rps float64, burst int) *KeyedRateLimiter {
	krl := &KeyedRateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Limit(rps),
		burst:    burst,
		ttl:      10 * time.Minute,
		done:     make(chan struct{}),
	}
	go krl.cleanupLoop()
	return krl
}

// Allow reports whether the key may proceed now.
func (k *KeyedRateLimiter) Allow(key string) bool {
	k.mu.Lock()
	entry, ok := k.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.limiters[key] = entry
	}
	entry.lastAccess = time.Now()
	k.mu.Unlock()

	return entry.limiter.Allow()
}

// Stop terminates the cleanup goroutine.
func (k *KeyedRateLimiter) Stop() {
	k.stopOnce.Do(func() { close(k.done) })
}

func (k *KeyedRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-k.done:
			return
		case <-ticker.C:
			k.cleanup()
		}
	}
}

func (k *KeyedRateLimiter) cleanup() {
	k.mu.Lock()
	defer k.mu.Unlock()
	cutoff := time.Now().Add(-k.ttl)
	for key, entry := range k.limiters {
		if entry.lastAccess.Before(cutoff) {
			delete(k.limiters, key)
		}
	}
}
