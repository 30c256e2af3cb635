package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/toeic4all/question-api/pkg/limiter"
)

type contextKey string

const userIDKey contextKey = "userID"

// WithUserID tags the request context with the authenticated user id. The
// auth layer calls this before the rate-limit filter resolves a client
// identifier.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

func userIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

const (
	apiPrefix    = "/api/v1/"
	publicPrefix = "/api/v1/questions/"
)

// RateLimitMiddleware enforces the limiter on API routes. Non-API paths pass
// through untouched. Public question routes advertise a relaxed 2x limit in
// the response headers while the admission decision still uses the
// configured maximum. Limiter backend failures admit the request: rate
// limiting is an accelerator, never a hard dependency.
func RateLimitMiddleware(l limiter.RateLimiter, max int64) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.Contains(r.URL.Path, apiPrefix) {
				next.ServeHTTP(w, r)
				return
			}

			id := clientIdentifier(r)

			advertised := max
			if strings.Contains(r.URL.Path, publicPrefix) {
				advertised = max * 2
			}

			allowed, err := l.Allow(r.Context(), id)
			if err != nil {
				log.Errorf("rate limiter unavailable, admitting request: %v", err)
				next.ServeHTTP(w, r)
				return
			}

			quota, err := l.Remaining(r.Context(), id)
			if err != nil {
				log.Errorf("failed to read rate limit state: %v", err)
				next.ServeHTTP(w, r)
				return
			}

			resetSeconds := int64((quota.Reset + time.Second - 1) / time.Second)
			reset := strconv.FormatInt(resetSeconds, 10)
			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(advertised, 10))
			w.Header().Set("X-RateLimit-Reset", reset)

			if !allowed {
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", reset)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error":               "rate limit exceeded",
					"retry_after_seconds": resetSeconds,
				})
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(quota.Remaining, 10))
			next.ServeHTTP(w, r)
		})
	}
}

// clientIdentifier prefers the authenticated user id and falls back to the
// client's network address.
func clientIdentifier(r *http.Request) string {
	if id, ok := userIDFromContext(r.Context()); ok {
		return "user:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
