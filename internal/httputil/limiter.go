package httputil

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// Limiter applies a token bucket per client IP. Buckets of idle clients
// are evicted after idle, and at most maxClients are tracked.
type Limiter struct {
	perSecond  rate.Limit
	burst      int
	trustProxy bool
	buckets    *expirable.LRU[string, *rate.Limiter]
}

// NewLimiter allows perSecond requests per client with the given burst.
func NewLimiter(perSecond float64, burst, maxClients int, idle time.Duration, trustProxy bool) *Limiter {
	if maxClients <= 0 {
		maxClients = 10000
	}
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &Limiter{
		perSecond:  rate.Limit(perSecond),
		burst:      burst,
		trustProxy: trustProxy,
		buckets:    expirable.NewLRU[string, *rate.Limiter](maxClients, nil, idle),
	}
}

// bucket returns the client's limiter. Concurrent first requests from one
// client may briefly race to create it; either bucket is acceptable.
func (l *Limiter) bucket(ip string) *rate.Limiter {
	if b, ok := l.buckets.Get(ip); ok {
		return b
	}
	b := rate.NewLimiter(l.perSecond, l.burst)
	l.buckets.Add(ip, b)
	return b
}

// Allow reports whether the client may proceed now, and if not, how long
// it should wait.
func (l *Limiter) Allow(ip string) (bool, time.Duration) {
	res := l.bucket(ip).Reserve()
	if !res.OK() {
		return false, time.Minute
	}
	if d := res.Delay(); d > 0 {
		res.Cancel()
		return false, d
	}
	return true, 0
}

// Middleware rejects over-limit requests with 429 and a Retry-After
// header.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := l.Allow(ClientIP(r, l.trustProxy))
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
