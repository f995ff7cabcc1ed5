package mid

import (
	"net/http"

	"github.com/WessleyAI/vinwizard/pkg/resilience"
)

// RateLimit returns middleware that rejects requests with 429 once the
// caller's bucket is empty. Requests are keyed by session ID, falling back to
// the remote address.
func RateLimit(l *resilience.KeyedLimiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := SessionID(r.Context())
			if key == "" {
				key = r.RemoteAddr
			}
			if !l.Allow(key) {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
