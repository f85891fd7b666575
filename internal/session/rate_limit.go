package session

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Throttle caps credential-guessing traffic per client IP using a
// sliding window kept in memory. State is per process, which is
// enough to blunt brute force against login and code verification.
type Throttle struct {
	mu       sync.Mutex
	maxHits  int
	window   time.Duration
	hitsByIP map[string][]time.Time
	maxIPs   int
}

func NewThrottle(maxHits int, window time.Duration) *Throttle {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &Throttle{
		maxHits:  maxHits,
		window:   window,
		hitsByIP: make(map[string][]time.Time),
		maxIPs:   5000,
	}
}

func (t *Throttle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, retryAfter := t.allow(requestIP(r), time.Now().UTC())
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (t *Throttle) allow(ip string, now time.Time) (bool, time.Duration) {
	threshold := now.Add(-t.window)

	t.mu.Lock()
	defer t.mu.Unlock()

	recent := t.hitsByIP[ip][:0]
	for _, hit := range t.hitsByIP[ip] {
		if hit.After(threshold) {
			recent = append(recent, hit)
		}
	}

	if len(recent) >= t.maxHits {
		retryAfter := recent[0].Add(t.window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		t.hitsByIP[ip] = recent
		return false, retryAfter
	}

	t.hitsByIP[ip] = append(recent, now)

	if len(t.hitsByIP) > t.maxIPs {
		for key, hits := range t.hitsByIP {
			if len(hits) == 0 || hits[len(hits)-1].Before(threshold) {
				delete(t.hitsByIP, key)
			}
		}
	}

	return true, 0
}

func requestIP(r *http.Request) string {
	forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if forwarded != "" {
		first := strings.TrimSpace(strings.SplitN(forwarded, ",", 2)[0])
		if first != "" {
			return first
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}

	return "unknown"
}
