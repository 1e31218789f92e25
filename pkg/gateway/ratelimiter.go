package gateway

import (
	"sync"
	"time"
)

const (
	defaultRequestsPerMinute = 60
	defaultMaxConcurrent     = 10
	rateWindow               = time.Minute
)

// Rejection reasons
const (
	ReasonTooManyConcurrent = "too many concurrent requests"
	ReasonRateLimited       = "rate limit exceeded"
)

// ClientRateLimiter is a sliding-window limiter for one client, bounding
// requests per minute and requests in flight
type ClientRateLimiter struct {
	mu                sync.Mutex
	requestsPerMinute int
	maxConcurrent     int
	requests          []time.Time
	concurrent        int
	lastSeen          time.Time
	now               func() time.Time
}

// NewClientRateLimiter creates a limiter. Non-positive limits use the
// defaults.
func NewClientRateLimiter(requestsPerMinute, maxConcurrent int) *ClientRateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = defaultRequestsPerMinute
	}
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	return &ClientRateLimiter{
		requestsPerMinute: requestsPerMinute,
		maxConcurrent:     maxConcurrent,
		now:               time.Now,
	}
}

// Acquire admits one request. On success the caller must call Release when
// the request ends; on rejection reason says which limit was hit.
func (r *ClientRateLimiter) Acquire() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.lastSeen = now

	if r.concurrent >= r.maxConcurrent {
		return false, ReasonTooManyConcurrent
	}

	r.prune(now)
	if len(r.requests) >= r.requestsPerMinute {
		return false, ReasonRateLimited
	}

	r.requests = append(r.requests, now)
	r.concurrent++
	return true, ""
}

// Release ends a request admitted by Acquire
func (r *ClientRateLimiter) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.concurrent > 0 {
		r.concurrent--
	}
}

// Stats returns the requests in the current window and those in flight
func (r *ClientRateLimiter) Stats() (requests, concurrent int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune(r.now())
	return len(r.requests), r.concurrent
}

func (r *ClientRateLimiter) prune(now time.Time) {
	cutoff := now.Add(-rateWindow)
	kept := r.requests[:0]
	for _, t := range r.requests {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.requests = kept
}

func (r *ClientRateLimiter) idle(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.concurrent == 0 && now.Sub(r.lastSeen) > rateWindow
}

// limiterRegistry holds one limiter per client IP
type limiterRegistry struct {
	mu                sync.Mutex
	limiters          map[string]*ClientRateLimiter
	requestsPerMinute int
	maxConcurrent     int
	lastSweep         time.Time
}

func newLimiterRegistry(requestsPerMinute, maxConcurrent int) *limiterRegistry {
	return &limiterRegistry{
		limiters:          make(map[string]*ClientRateLimiter),
		requestsPerMinute: requestsPerMinute,
		maxConcurrent:     maxConcurrent,
		lastSweep:         time.Now(),
	}
}

// get returns the limiter of ip, dropping idle limiters once per window
func (l *limiterRegistry) get(ip string) *ClientRateLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastSweep) > rateWindow {
		for key, limiter := range l.limiters {
			if limiter.idle(now) {
				delete(l.limiters, key)
			}
		}
		l.lastSweep = now
	}

	limiter, ok := l.limiters[ip]
	if !ok {
		limiter = NewClientRateLimiter(l.requestsPerMinute, l.maxConcurrent)
		l.limiters[ip] = limiter
	}
	return limiter
}
