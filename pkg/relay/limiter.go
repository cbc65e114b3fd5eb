package relay

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter damps request floods from a single origin host before the
// validation pipeline runs. It is product-level abuse protection, not
// part of the core protocol contract, and is off unless constructed.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rps     rate.Limit
	burst   int
}

// NewLimiter allows rps sustained requests per origin host with the
// given burst.
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

// Allow reports whether one more request from host may proceed.
func (l *Limiter) Allow(host string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	b, ok := l.buckets[host]
	if !ok {
		b = rate.NewLimiter(l.rps, l.burst)
		l.buckets[host] = b
	}
	l.mu.Unlock()
	return b.Allow()
}
