package middleware

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMaxClients bounds how many per-IP buckets a RateLimiter keeps.
const DefaultMaxClients = 10000

// RateLimiter hands out a token bucket per client IP. It sits in front of the
// reveal endpoint so nobody can guess codes at line speed, and in front of
// the admin login for the same reason with passwords.
//
// The key is r.RemoteAddr. Only mount chi's RealIP ahead of it when a trusted
// proxy sets X-Forwarded-For; otherwise clients pick their own key.
//
// At most maxClients buckets are kept. Once full, and after idle buckets are
// swept, new addresses share a single overflow bucket.
type RateLimiter struct {
	mu         sync.Mutex
	clients    map[string]*client
	overflow   *rate.Limiter
	limit      rate.Limit
	burst      int
	maxClients int
	idleTTL    time.Duration
	lastSweep  time.Time
	now        func() time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perMinute requests per IP with the given burst.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(float64(perMinute) / 60)
	return &RateLimiter{
		clients:    map[string]*client{},
		overflow:   rate.NewLimiter(limit, burst),
		limit:      limit,
		burst:      burst,
		maxClients: DefaultMaxClients,
		idleTTL:    10 * time.Minute,
		now:        time.Now,
	}
}

// Allow reports whether key may make a request now.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, ok := rl.clients[key]
	if !ok {
		if len(rl.clients) >= rl.maxClients || now.Sub(rl.lastSweep) > rl.idleTTL {
			rl.sweep(now)
		}
		if len(rl.clients) >= rl.maxClients {
			return rl.overflow.AllowN(now, 1)
		}
		c = &client{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// Len reports how many per-client buckets are held.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// sweep drops clients idle for longer than idleTTL. Caller holds rl.mu.
func (rl *RateLimiter) sweep(now time.Time) {
	rl.lastSweep = now
	for key, c := range rl.clients {
		if now.Sub(c.lastSeen) > rl.idleTTL {
			delete(rl.clients, key)
		}
	}
}

// Middleware rejects over-limit requests with 429 and a Retry-After header.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r)) {
			retry := 60
			if rl.limit > 0 {
				retry = int(math.Ceil(1 / float64(rl.limit)))
			}
			w.Header().Set("Retry-After", fmt.Sprint(retry))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limited","message":"too many attempts, slow down"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
