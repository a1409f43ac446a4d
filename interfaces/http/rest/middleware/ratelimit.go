package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"kbquery/pkg/common"
	apperrors "kbquery/pkg/errors"
)

// OrgRateLimiter keeps one token bucket per org.
type OrgRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	idle    time.Duration
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewOrgRateLimiter allows perMinute requests per org with the given burst.
func NewOrgRateLimiter(perMinute, burst int) *OrgRateLimiter {
	if burst <= 0 {
		burst = perMinute
	}
	return &OrgRateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		idle:    time.Hour,
	}
}

// Allow reports whether key may issue a request now, and otherwise how
// long until it may.
func (l *OrgRateLimiter) Allow(key string) (bool, time.Duration) {
	now := time.Now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Minute
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Len returns the number of tracked orgs.
func (l *OrgRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// RunJanitor drops buckets idle for over an hour until ctx is done.
func (l *OrgRateLimiter) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.sweep(now)
		}
	}
}

func (l *OrgRateLimiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idle {
			delete(l.buckets, key)
		}
	}
}

// RateLimit throttles requests by the org of their scope. It must run
// after Scope.
func RateLimit(limiter *OrgRateLimiter, errs *apperrors.ErrorHandler) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope, ok := common.GetScope(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			allowed, wait := limiter.Allow(scope.OrgID)
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				errs.Handle(w, r, apperrors.NewRateLimitError("org "+scope.OrgID))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
