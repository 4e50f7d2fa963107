package httpserver

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPLimiter is a coarse token-bucket throttle per client address fronting
// the whole API. The finer per-actor, per-action quotas live in the
// service's rate limiter; this one just keeps a single address from
// hammering the surface.
type IPLimiter struct {
	rate  rate.Limit
	burst int
	ttl   time.Duration

	mu        sync.Mutex
	clients   map[string]*ipClient
	lastSweep time.Time
}

type ipClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPLimiter constructs an IPLimiter. Idle entries are forgotten after ttl.
func NewIPLimiter(r rate.Limit, burst int, ttl time.Duration) *IPLimiter {
	return &IPLimiter{
		rate:    r,
		burst:   burst,
		ttl:     ttl,
		clients: make(map[string]*ipClient),
	}
}

// Allow reports whether a request from key is permitted.
func (l *IPLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	if key == "" {
		key = "unknown"
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.clients[key]
	if !ok {
		entry = &ipClient{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.clients[key] = entry
	}
	entry.lastSeen = now

	if l.ttl > 0 && now.Sub(l.lastSweep) > l.ttl {
		for k, v := range l.clients {
			if now.Sub(v.lastSeen) > l.ttl {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}
	return entry.limiter.Allow()
}

// Throttle enforces the limiter per client key.
func Throttle(l *IPLimiter, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ""
			if keyFunc != nil {
				key = keyFunc(r)
			}
			if !l.Allow(key) {
				w.Header().Set("Retry-After", "1")
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the client address, respecting proxy headers only when
// trustProxy is set.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
				return ip
			}
		}
		if xrip := strings.TrimSpace(r.Header.Get("X-Real-IP")); xrip != "" {
			return xrip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
