package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/parkercarrus/cluster-trading-strategy/internal/observability"
	"github.com/parkercarrus/cluster-trading-strategy/pkg/redis"
)

// RateLimiter bounds requests per client.
// With Redis enabled the window is shared across instances; otherwise each
// client gets an in-process token bucket.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	shared   *redis.RateLimiter
}

// NewRateLimiter creates a limiter allowing perSecond requests with burst per client.
// shared may be nil.
func NewRateLimiter(perSecond float64, burst int, shared *redis.RateLimiter) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		shared:   shared,
	}
}

// Allow reports whether the client may proceed
func (l *RateLimiter) Allow(ctx context.Context, client string) bool {
	if l.shared != nil && l.shared.Enabled() {
		// Redis 오류 시 로컬 버킷으로 fallback
		if ok, _, err := l.shared.Allow(ctx, redis.BacktestRateLimit(client)); err == nil {
			return ok
		}
	}
	return l.local(client).Allow()
}

func (l *RateLimiter) local(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[client]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[client] = lim
	}
	return lim
}

// Middleware rejects over-limit clients with 429
func (l *RateLimiter) Middleware(metrics *observability.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(r.Context(), clientKey(r)) {
				if metrics != nil {
					metrics.RateLimited.Inc()
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter(l.limit)))
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func retryAfter(limit rate.Limit) int {
	if limit <= 0 {
		return 60
	}
	if s := int(1 / float64(limit)); s > 1 {
		return s
	}
	return 1
}
