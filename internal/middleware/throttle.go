package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// bucket is a token bucket refilled by whole periods.
type bucket struct {
	tokens    int
	lastCheck time.Time
}

// Limiter hands out Burst tokens per client and adds one back every Period.
type Limiter struct {
	Burst  int
	Period time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

func NewLimiter(burst int, period time.Duration) *Limiter {
	return &Limiter{
		Burst:   burst,
		Period:  period,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow takes a token from key's bucket.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{tokens: l.Burst - 1, lastCheck: now}
		return true
	}

	if elapsed := now.Sub(b.lastCheck); elapsed >= l.Period {
		times := int(elapsed / l.Period)
		b.tokens = min(b.tokens+times, l.Burst)
		b.lastCheck = b.lastCheck.Add(time.Duration(times) * l.Period)
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// Sweep drops buckets that have been full for a while.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	idle := time.Duration(l.Burst+1) * l.Period
	now := l.now()
	for key, b := range l.buckets {
		if now.Sub(b.lastCheck) > idle {
			delete(l.buckets, key)
		}
	}
}

// Throttle rejects requests from a client address that exceeded its budget.
func Throttle(l *Limiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || l.Allow(clientIP(r)) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(l.Period.Seconds()+0.5)))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
