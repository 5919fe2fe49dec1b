package api

import (
	"net/http"

	"golang.org/x/time/rate"
)

// ingestRateLimiter bounds the ingestion endpoints with a shared token
// bucket. A nil limiter disables limiting.
func ingestRateLimiter(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil && !limiter.Allow() {
				jsonError(w, http.StatusTooManyRequests, errCodeRateLimited, "ingestion rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewIngestLimiter builds the shared ingestion limiter. A non-positive
// eventsPerSecond disables limiting.
func NewIngestLimiter(eventsPerSecond float64, burst int) *rate.Limiter {
	if eventsPerSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = int(eventsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return rate.NewLimiter(rate.Limit(eventsPerSecond), burst)
}
