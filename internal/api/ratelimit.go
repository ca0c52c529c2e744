package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Stale per-IP buckets are swept opportunistically while serving requests,
// so the map stays bounded without a background goroutine.
const (
	limiterSweepEvery = 5 * time.Minute
	limiterIdleExpiry = 10 * time.Minute
)

// rateLimiter hands out one token bucket per client IP, refilling at a fixed
// per-second rate.
type rateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*ipBucket
	refill    rate.Limit
	burst     int
	lastSweep time.Time
}

type ipBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	return &rateLimiter{
		buckets:   make(map[string]*ipBucket),
		refill:    rate.Limit(perSecond),
		burst:     burst,
		lastSweep: time.Now(),
	}
}

// allow consumes one token from ip's bucket, creating the bucket with a full
// burst allowance on first sight.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.sweepLocked(now)

	b, ok := rl.buckets[ip]
	if !ok {
		b = &ipBucket{limiter: rate.NewLimiter(rl.refill, rl.burst)}
		rl.buckets[ip] = b
	}
	b.lastSeen = now
	return b.limiter.Allow()
}

func (rl *rateLimiter) sweepLocked(now time.Time) {
	if now.Sub(rl.lastSweep) <= limiterSweepEvery {
		return
	}
	for ip, b := range rl.buckets {
		if now.Sub(b.lastSeen) > limiterIdleExpiry {
			delete(rl.buckets, ip)
		}
	}
	rl.lastSweep = now
}

// rateLimitMiddleware rejects with 429 once an IP empties its bucket.
func rateLimitMiddleware(rl *rateLimiter, trustProxy bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, trustProxy)
			if rl.allow(ip) {
				next.ServeHTTP(w, r)
				return
			}
			logger.Warn("rate limit exceeded", "ip", ip, "method", r.Method, "path", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", logger)
		})
	}
}

// clientIP resolves the key an incoming request is limited under. Proxy
// headers are honored only when the deployment declares a trusted reverse
// proxy in front, and their values must parse as IPs so arbitrary header
// text cannot mint fresh buckets.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, raw := range proxyHeaderValues(r) {
			if ip := net.ParseIP(strings.TrimSpace(raw)); ip != nil {
				return ip.String()
			}
		}
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// proxyHeaderValues lists candidate client addresses in trust order:
// X-Real-IP, then the first hop of X-Forwarded-For.
func proxyHeaderValues(r *http.Request) []string {
	var vals []string
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		vals = append(vals, xri)
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		vals = append(vals, first)
	}
	return vals
}
