package http

import (
	"math"
	"net/http"
	"strconv"

	"github.com/streamkit/http-source/internal/domain/ratelimit"
)

// RateLimitMiddleware rejects clients that exceed cfg with 429 and a
// Retry-After header. Clients are identified by extractRealIP. A limiter
// error fails open.
func RateLimitMiddleware(limiter ratelimit.Limiter, cfg ratelimit.Config, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := extractRealIP(r)
			res, err := limiter.Allow(r.Context(), ratelimit.ClientKey(ip), cfg)
			if err != nil {
				LoggerFromContext(r.Context()).Error("rate limiter failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(max(cfg.Burst, cfg.Rate)))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			if !res.Allowed {
				if metrics != nil {
					metrics.RateLimited.Inc()
				}
				LoggerFromContext(r.Context()).Debug("rate limited", "retry_after", res.RetryAfter)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
				writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
