package ratelimit

import (
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// KeyFunc derives the bucket key for a request.
type KeyFunc func(r *http.Request) string

// ByClientIP keys requests by client IP, with an optional prefix so two
// limiters never share buckets for the same client.
func ByClientIP(prefix string) KeyFunc {
	return func(r *http.Request) string { return prefix + ClientIP(r) }
}

// ClientIP is the host part of RemoteAddr. Forwarding headers are not read
// here: behind a trusted proxy, mount chi's middleware.RealIP ahead of the
// limiter so RemoteAddr already carries the forwarded address.
func ClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Middleware rejects requests with 429 once the key's window is full.
// A panic inside the limiter lets the request through.
func Middleware(l *Limiter, key KeyFunc, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		if !l.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, ok := check(l, key, r, logger)
			if ok && !d.Allowed {
				secs := int(math.Ceil(d.RetryIn.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "Too many requests, please try again later"})
				return
			}
			if ok {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func check(l *Limiter, key KeyFunc, r *http.Request, logger *zap.Logger) (d Decision, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("ratelimit.failed", zap.String("path", r.URL.Path), zap.String("panic", fmt.Sprint(rec)))
			ok = false
		}
	}()
	return l.Allow(key(r)), true
}
