// Package ratelimit provides a per-identity sliding window request limiter
// for the HTTP surface. The sliding window counts individual request
// timestamps, so bursts straddling a window boundary cannot double the
// effective limit.
package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"curio/pkg/requestcontext"
)

// Result reports one admission decision.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	Limit     int
}

// Limiter admits up to limit requests per key within a sliding window.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string][]time.Time
}

// NewLimiter constructs a limiter. A limit of zero disables admission
// control; Allow always succeeds.
func NewLimiter(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string][]time.Time),
	}
}

// Allow records one request for the key and reports whether it fits the
// window.
func (l *Limiter) Allow(key string) Result {
	if l.limit <= 0 {
		return Result{Allowed: true, Remaining: -1}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)
	kept := l.buckets[key][:0]
	for _, ts := range l.buckets[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.limit {
		l.buckets[key] = kept
		return Result{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   kept[0].Add(l.window),
			Limit:     l.limit,
		}
	}

	kept = append(kept, now)
	l.buckets[key] = kept
	return Result{
		Allowed:   true,
		Remaining: l.limit - len(kept),
		ResetAt:   kept[0].Add(l.window),
		Limit:     l.limit,
	}
}

// Reset clears the window for one key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Middleware rejects requests over the caller's limit with 429. Requests
// without a caller identity fall back to the remote address, so the
// unauthenticated surface is throttled too.
func Middleware(limiter *Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := requestcontext.Caller(ctx).String()
			if key == "" {
				key = r.RemoteAddr
			}

			result := limiter.Allow(key)
			if !result.Allowed {
				logger.WarnContext(ctx, "rate limit exceeded",
					"key", key,
					"request_id", requestcontext.RequestID(ctx),
				)
				retryAfter := int(time.Until(result.ResetAt).Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate_limited","error_description":"request limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
