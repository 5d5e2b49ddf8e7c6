package security

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter is a fixed-window limiter keyed by client.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows map[string]*window
	maxKeys int
	now     func() time.Time
}

type window struct {
	remaining int
	started   time.Time
}

// NewRateLimiter allows limit requests per key in every window.
func NewRateLimiter(limit int, per time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  per,
		windows: make(map[string]*window),
		maxKeys: 1024,
		now:     time.Now,
	}
}

// Allow consumes one request for key and reports whether it fits the window.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[key]
	if !ok || now.Sub(w.started) >= rl.window {
		if !ok && len(rl.windows) >= rl.maxKeys {
			rl.evictStale(now)
		}
		rl.windows[key] = &window{remaining: rl.limit - 1, started: now}
		return rl.limit > 0
	}
	if w.remaining > 0 {
		w.remaining--
		return true
	}
	return false
}

func (rl *RateLimiter) evictStale(now time.Time) {
	for key, w := range rl.windows {
		if now.Sub(w.started) >= rl.window {
			delete(rl.windows, key)
		}
	}
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware(key func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(key(r)) {
				w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RemoteAddrKey keys requests by the connecting host. Forwarding headers are
// ignored because the pairing server is never behind a proxy.
func RemoteAddrKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
