package httpx

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a per-client token bucket kept in process memory. It is the fallback when no Redis is
// configured, so limits are per replica.
type RateLimiter struct {
	limit  rate.Limit
	burst  int
	idle   time.Duration
	now    func() time.Time
	mu     sync.Mutex
	byKey  map[string]*bucket
	sweeps int
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewRateLimiter allows perWindow requests per window per client, all of which may arrive at once.
func NewRateLimiter(perWindow int, window time.Duration) *RateLimiter {
	if perWindow <= 0 {
		perWindow = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit: rate.Limit(float64(perWindow) / window.Seconds()),
		burst: perWindow,
		idle:  2 * window,
		now:   time.Now,
		byKey: map[string]*bucket{},
	}
}

func (rl *RateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if wait, ok := rl.allow(clientKey(r)); !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// allow takes one token for key. When none is left it reports how long until one is.
func (rl *RateLimiter) allow(key string) (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)
	b, ok := rl.byKey[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.byKey[key] = b
	}
	b.seen = now

	res := b.lim.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return delay, false
	}
	return 0, true
}

// sweep drops idle buckets every few hundred calls.
func (rl *RateLimiter) sweep(now time.Time) {
	rl.sweeps++
	if rl.sweeps < 256 {
		return
	}
	rl.sweeps = 0
	for k, b := range rl.byKey {
		if now.Sub(b.seen) > rl.idle {
			delete(rl.byKey, k)
		}
	}
}

// clientKey prefers the first X-Forwarded-For hop set by the ingress.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
