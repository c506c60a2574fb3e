// Package ratelimit throttles verification-code sends per identity.
package ratelimit

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kuitang/admin-e2e/internal/clock"
)

// Config defines the rate limiting configuration.
type Config struct {
	Rate            float64       // Sends per second per identity
	Burst           int           // Sends allowed back to back
	CleanupInterval time.Duration // How long an idle limiter is kept
}

// DefaultConfig allows a first send plus two resends, then one send per second.
var DefaultConfig = Config{
	Rate:            1,
	Burst:           3,
	CleanupInterval: time.Hour,
}

type entry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// Limiter manages one token bucket per key.
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*entry
	config   Config
	clock    clock.Clock
}

// New creates a limiter. A nil clock uses the wall clock. Idle limiters are
// dropped by Cleanup, which the caller runs on its own schedule.
func New(config Config, clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.Real{}
	}
	if config.Burst < 1 {
		config.Burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*entry),
		config:   config,
		clock:    clk,
	}
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Allow reports whether key may send now and consumes a token if so.
func (l *Limiter) Allow(key string) bool {
	now := l.clock.Now()
	return l.get(normalizeKey(key), now).AllowN(now, 1)
}

// Remaining returns the approximate number of sends key has left right now.
func (l *Limiter) Remaining(key string) int {
	now := l.clock.Now()
	n := int(l.get(normalizeKey(key), now).TokensAt(now))
	return max(n, 0)
}

func (l *Limiter) get(key string, now time.Time) *rate.Limiter {
	l.mu.RLock()
	e, ok := l.limiters[key]
	l.mu.RUnlock()
	if ok {
		l.mu.Lock()
		e.lastUsed = now
		l.mu.Unlock()
		return e.limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// Double-check after acquiring write lock
	if e, ok := l.limiters[key]; ok {
		e.lastUsed = now
		return e.limiter
	}
	lim := rate.NewLimiter(rate.Limit(l.config.Rate), l.config.Burst)
	l.limiters[key] = &entry{limiter: lim, lastUsed: now}
	return lim
}

// Cleanup removes limiters idle for longer than CleanupInterval.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.clock.Now().Add(-l.config.CleanupInterval)
	for key, e := range l.limiters {
		if e.lastUsed.Before(cutoff) {
			delete(l.limiters, key)
		}
	}
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limiters)
}
