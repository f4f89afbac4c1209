// Package throttle limits how many records each instrumented method may emit.
//
// Every method gets its own token bucket, so one hot path cannot starve the
// records of the others. Callers decide what is exempt; the record assembler
// never throttles error records.
package throttle

import (
	"sync"
	"time"

	"github.com/fyrsmithlabs/tracelog/internal/config"
	"golang.org/x/time/rate"
)

// Limiter is a set of per-key token buckets. A nil *Limiter allows
// everything.
type Limiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	dropped  map[string]uint64
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New returns a limiter allowing perSecond events per key with the given
// burst. A burst below 1 is raised to 1.
func New(perSecond float64, burst int, opts ...Option) *Limiter {
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
		dropped:  make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FromConfig returns a limiter for cfg, or nil when throttling is disabled.
func FromConfig(cfg config.ThrottleConfig) *Limiter {
	if !cfg.Enabled {
		return nil
	}
	return New(cfg.PerSecond, cfg.Burst)
}

// Allow reports whether an event for key may proceed now, consuming a token
// when it may.
func (l *Limiter) Allow(key string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	if lim.AllowN(l.now(), 1) {
		return true
	}
	l.dropped[key]++
	return false
}

// Dropped returns how many events for key were refused.
func (l *Limiter) Dropped(key string) uint64 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped[key]
}

// Reset forgets all buckets and drop counts.
func (l *Limiter) Reset() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiters = make(map[string]*rate.Limiter)
	l.dropped = make(map[string]uint64)
}
