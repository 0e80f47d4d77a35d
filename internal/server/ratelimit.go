package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// visitor tracks a single IP's limiter and last activity.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPLimiter holds per-IP rate limiters with lazy eviction. It is a
// simple in-memory, single-instance defense against one client flooding
// the gateway endpoint; it does not protect against distributed abuse.
type IPLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	perSecond rate.Limit
	burst     int
	ttl       time.Duration

	// OnDenied is called on every denied request, used for metrics.
	OnDenied func(ip string)
}

// NewIPLimiter creates a limiter allowing burst requests at once,
// refilled at perSecond tokens per second per IP.
func NewIPLimiter(perSecond float64, burst int) *IPLimiter {
	return &IPLimiter{
		visitors:  make(map[string]*visitor),
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		ttl:       10 * time.Minute,
	}
}

func (l *IPLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	v, ok := l.visitors[ip]
	if !ok {
		// Piggyback eviction of idle entries on new-visitor creation.
		for k, old := range l.visitors {
			if now.Sub(old.lastSeen) > l.ttl {
				delete(l.visitors, k)
			}
		}
		v = &visitor{limiter: rate.NewLimiter(l.perSecond, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.Allow()
}

// Middleware denies requests from IPs that exceed their budget.
func (l *IPLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !l.allow(ip) {
			if l.OnDenied != nil {
				l.OnDenied(ip)
			}
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
