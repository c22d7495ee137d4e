package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bimbel/storagegw/internal/response"
)

// RateLimiter keeps one token bucket per key and forgets idle keys.
type RateLimiter struct {
	limit  rate.Limit
	burst  int
	maxAge time.Duration

	mu    sync.Mutex
	store map[string]*limiterEntry
}

type limiterEntry struct {
	limiter *rate.Limiter
	updated time.Time
}

// NewRateLimiter allows reqPerSec sustained requests per key with the given burst.
func NewRateLimiter(reqPerSec float64, burst int) *RateLimiter {
	return &RateLimiter{
		limit:  rate.Limit(reqPerSec),
		burst:  burst,
		maxAge: 10 * time.Minute,
		store:  make(map[string]*limiterEntry),
	}
}

func (l *RateLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if entry, ok := l.store[key]; ok {
		entry.updated = now
		return entry.limiter
	}

	lim := rate.NewLimiter(l.limit, l.burst)
	l.store[key] = &limiterEntry{limiter: lim, updated: now}

	for k, entry := range l.store {
		if now.Sub(entry.updated) > l.maxAge {
			delete(l.store, k)
		}
	}
	return lim
}

// PerUser limits by authenticated subject, falling back to the client address
// for requests that did not pass RequireAuth.
func (l *RateLimiter) PerUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := UserID(r.Context())
		if key == "" {
			key = "ip:" + r.RemoteAddr
		}
		if !l.get(key).Allow() {
			response.TooManyRequests(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
