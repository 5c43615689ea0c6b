package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/l7waf/engine/internal/httputil"
)

// AdminRateLimiter throttles the admin API itself (a control-plane
// concern, distinct from the per-route domain rate limiter the pipeline
// runs as one of its phases), keyed per client IP with golang.org/x/time/rate,
// matching infrastructure/middleware/ratelimit.go in the reference.
type AdminRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewAdminRateLimiter builds an AdminRateLimiter admitting requestsPerSecond
// with the given burst, per client IP.
func NewAdminRateLimiter(requestsPerSecond float64, burst int) *AdminRateLimiter {
	return &AdminRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

func (rl *AdminRateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[key]
	if !ok {
		l = rate.NewLimiter(rl.rps, rl.burst)
		rl.limiters[key] = l
	}
	return l
}

// Handler enforces the limit, responding 429 with Retry-After once a
// client's budget is exhausted.
func (rl *AdminRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := httputil.ClientIP(r)
		if !rl.limiterFor(key).Allow() {
			w.Header().Set("Retry-After", strconv.Itoa(1))
			httputil.WriteErrorResponse(w, http.StatusTooManyRequests, "ADMIN_RATE_LIMITED", "admin API rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Cleanup drops every tracked limiter once the map grows unreasonably
// large, bounding memory for an admin API facing many distinct callers.
func (rl *AdminRateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.limiters) > 10000 {
		rl.limiters = make(map[string]*rate.Limiter)
	}
}

// StartCleanup runs Cleanup on a fixed interval until stopped.
func (rl *AdminRateLimiter) StartCleanup(interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once
	go func() {
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-done:
				return
			}
		}
	}()
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}
