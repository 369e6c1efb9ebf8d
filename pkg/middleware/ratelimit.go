package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"complaint-intake-system/pkg/response"
)

// RateLimiter is a fixed-window per-key request counter.
type RateLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	data    map[string]*windowBucket
	limit   int
	window  time.Duration
	maxKeys int
}

type windowBucket struct {
	count     int
	windowEnd time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		now:     time.Now,
		data:    make(map[string]*windowBucket),
		limit:   limit,
		window:  window,
		maxKeys: 10000,
	}
}

// Allow reports whether one more request from key fits in the current window.
func (l *RateLimiter) Allow(key string) bool {
	if l.limit <= 0 {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.data[key]
	if ok && now.After(bucket.windowEnd) {
		delete(l.data, key)
		ok = false
	}
	if !ok {
		if len(l.data) >= l.maxKeys {
			l.gc(now)
		}
		if len(l.data) >= l.maxKeys {
			// Fail open rather than blocking intake when the key table is full.
			return true
		}
		bucket = &windowBucket{windowEnd: now.Add(l.window)}
		l.data[key] = bucket
	}

	if bucket.count < l.limit {
		bucket.count++
		return true
	}
	return false
}

func (l *RateLimiter) gc(now time.Time) {
	for key, bucket := range l.data {
		if now.After(bucket.windowEnd) {
			delete(l.data, key)
		}
	}
}

// RateLimitMiddleware limits requests per client IP.
func RateLimitMiddleware(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(ClientIP(r)) {
				window := int(limiter.window.Minutes())
				response.Error(w, http.StatusTooManyRequests,
					fmt.Sprintf("Too many requests from this IP, try again in %d minutes", window))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP resolves the originating client address. X-Forwarded-For may
// carry the whole proxy chain; the first entry is the client.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			fwd = fwd[:idx]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
