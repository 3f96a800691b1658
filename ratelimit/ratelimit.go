package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"vidshare/httputil"
)

// Limiter is a per-IP token bucket. It guards the credential endpoints
// (token issue, registration) on a single-instance deployment.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    int           // tokens per window
	window  time.Duration // refill window
}

type bucket struct {
	tokens    int
	lastReset time.Time
}

// New creates a Limiter allowing rate requests per window per IP.
func New(rate int, window time.Duration) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		window:  window,
	}
	// Evict stale entries so the map does not grow without bound.
	go func() {
		for {
			time.Sleep(5 * time.Minute)
			l.cleanup()
		}
	}()
	return l
}

func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-2 * l.window)
	for ip, b := range l.buckets {
		if b.lastReset.Before(cutoff) {
			delete(l.buckets, ip)
		}
	}
}

// Allow reports whether the given IP is within the rate limit.
func (l *Limiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, exists := l.buckets[ip]
	if !exists || now.Sub(b.lastReset) >= l.window {
		l.buckets[ip] = &bucket{tokens: l.rate - 1, lastReset: now}
		return true
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// trustedCIDRs are proxy networks whose forwarding headers we trust.
var trustedCIDRs = func() []*net.IPNet {
	var nets []*net.IPNet
	for _, c := range []string{"127.0.0.0/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "::1/128", "fc00::/7"} {
		_, n, _ := net.ParseCIDR(c)
		nets = append(nets, n)
	}
	return nets
}()

func isTrustedProxy(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, cidr := range trustedCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP extracts the real client IP. X-Real-IP / X-Forwarded-For are
// honored only when the request arrives from a trusted proxy network, so a
// direct caller cannot spoof its way past the limit.
func ClientIP(r *http.Request) string {
	if isTrustedProxy(r.RemoteAddr) {
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			return strings.TrimSpace(realIP)
		}
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			if idx := strings.IndexByte(forwarded, ','); idx != -1 {
				return strings.TrimSpace(forwarded[:idx])
			}
			return strings.TrimSpace(forwarded)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware returns HTTP 429 when the per-IP rate is exceeded.
func Middleware(l *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(ClientIP(r)) {
				w.Header().Set("Retry-After", "60")
				httputil.Error(w, 429, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
