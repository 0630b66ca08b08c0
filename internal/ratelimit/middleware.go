package ratelimit

import (
	"net/http"

	"github.com/repolens-dev/repolens-web/internal/clientip"
	"github.com/repolens-dev/repolens-web/internal/logger"
)

// Middleware rejects requests over the limit with 429. Keys on the
// composite client key resolved by clientip.Middleware, which must run
// earlier in the chain.
func Middleware(limiter RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientip.FromRequest(r).RateLimitKey

			if !limiter.Allow(r.Context(), key) {
				logger.Warn("rate limit exceeded", "client", key, "path", r.URL.Path)
				http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
