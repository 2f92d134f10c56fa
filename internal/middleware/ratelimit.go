package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/workzone/workzone-mcp/internal/models"
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client. Each bucket holds a full
// minute of requests and refills continuously.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   int
	now     func() time.Time
}

func NewRateLimiter(limitPerMinute int) *RateLimiter {
	if limitPerMinute < 1 {
		limitPerMinute = 1
	}
	return &RateLimiter{
		clients: make(map[string]*client),
		limit:   limitPerMinute,
		now:     time.Now,
	}
}

// Allow consumes one request for key and reports the tokens left.
func (rl *RateLimiter) Allow(key string) (remaining int, ok bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, found := rl.clients[key]
	if !found {
		c = &client{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.limit)), rl.limit)}
		rl.clients[key] = c
	}
	c.lastSeen = now

	ok = c.limiter.AllowN(now, 1)
	remaining = int(c.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return remaining, ok
}

// Cleanup drops clients idle for longer than a minute; their buckets are
// full again by then.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-time.Minute)
	for key, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, key)
		}
	}
}

func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// RateLimit limits requests per client. Clients are keyed by API key when
// one is sent in keyHeader, otherwise by remote address.
func RateLimit(limitPerMinute int, keyHeader string) func(http.Handler) http.Handler {
	rl := NewRateLimiter(limitPerMinute)
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			rl.Cleanup()
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(keyHeader)
			if key == "" {
				key = r.RemoteAddr
			}

			remaining, ok := rl.Allow(key)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !ok {
				models.WriteErrorResponse(w, models.ErrorResponse{
					Code:       http.StatusTooManyRequests,
					Message:    "rate limit exceeded",
					Reason:     "rate_limited",
					Retryable:  true,
					RetryAfter: 60,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
