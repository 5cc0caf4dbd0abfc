// Package upload drives the pending-pings queue to the platform uploader:
// a single-upload-in-flight worker loop, a retry/backoff policy, and a
// sliding-window rate limiter. Grounded on internal/ratelimit/limiter.go's
// Clock abstraction and mutex-guarded state, regeneralized from a
// per-domain adaptive limiter with circuit breaker into the spec's single
// global sliding-window budget.
package upload

import (
	"sync"
	"time"
)

// Clock abstracts time.Now so tests can inject a fake clock,
// matching the teacher's ratelimit.Clock seam.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RateLimiter admits at most maxPerInterval events per sliding interval,
// tracked as a deque of admission timestamps rather than the teacher's
// token-bucket fill rate: the spec calls for an exact sliding-window count,
// not a smoothed rate.
type RateLimiter struct {
	mu             sync.Mutex
	clock          Clock
	maxPerInterval int
	interval       time.Duration
	admitted       []time.Time
}

// NewRateLimiter builds a limiter allowing maxPerInterval admissions per
// interval. clock may be nil to use the real wall clock.
func NewRateLimiter(maxPerInterval int, interval time.Duration, clock Clock) *RateLimiter {
	if clock == nil {
		clock = realClock{}
	}
	return &RateLimiter{clock: clock, maxPerInterval: maxPerInterval, interval: interval}
}

// Allow reports whether an admission is permitted right now, and if not,
// how long to wait before the next one might be.
func (r *RateLimiter) Allow() (ok bool, wait time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	cutoff := now.Add(-r.interval)
	kept := r.admitted[:0:0]
	for _, t := range r.admitted {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.admitted = kept

	if len(r.admitted) < r.maxPerInterval {
		r.admitted = append(r.admitted, now)
		return true, 0
	}
	oldest := r.admitted[0]
	return false, oldest.Add(r.interval).Sub(now)
}
