package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nikhilbhutani/sttgateway/internal/tenant"
)

// WindowCounter counts hits per key in fixed windows. *cache.Cache
// satisfies it.
type WindowCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimiter caps requests per caller in one-second windows. Counters live
// in Redis so every gateway instance shares them.
type RateLimiter struct {
	counter WindowCounter
	limit   int64
	window  time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func NewRateLimiter(counter WindowCounter, rps int, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		counter: counter,
		limit:   int64(rps),
		window:  time.Second,
		logger:  logger,
		now:     time.Now,
	}
}

// Limit keys on the authenticated user when there is one and on the client
// address otherwise. Counter errors let the request through.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	if rl.limit <= 0 || rl.counter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slot := rl.now().Unix()
		key := "ratelimit:" + rl.callerKey(r) + ":" + strconv.FormatInt(slot, 10)

		n, err := rl.counter.IncrWindow(r.Context(), key, rl.window)
		if err != nil {
			rl.logger.Warn("rate limiter unavailable, allowing request", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		if n > rl.limit {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) callerKey(r *http.Request) string {
	if p, ok := tenant.PrincipalFromContext(r.Context()); ok {
		return "user:" + p.UserID.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
