package ratelimit

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strconv"

	"ugc-maroc-backend/internal/models"
)

// Middleware applies the limiter to every request passing through it.
// Responses always carry the remaining-quota and reset-time headers; an
// exceeded limit yields 429 with a machine-readable retry-after in seconds.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := l.Check(r.Context(), ClientID(r), r.URL.Path)

		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			retryAfter := int(result.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			if err := json.NewEncoder(w).Encode(models.ErrorResponse{
				Error:      "rate limit exceeded",
				RetryAfter: retryAfter,
			}); err != nil {
				log.Printf("Error encoding rate-limit response: %v", err)
			}
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientID derives the client identity for rate limiting from the best
// available connection address. chi's RealIP middleware has already folded
// X-Forwarded-For / X-Real-IP into RemoteAddr by the time we run; requests
// with no usable address share the single "unknown" bucket, a known weak
// point behind proxies that strip forwarding headers.
func ClientID(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RealIP rewrites RemoteAddr without a port.
		return r.RemoteAddr
	}
	if host == "" {
		return "unknown"
	}
	return host
}
