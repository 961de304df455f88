package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// sweepThreshold is how many tracked clients trigger a purge of idle windows.
const sweepThreshold = 1024

type window struct {
	start time.Time
	count int
}

// rateLimiter is a fixed-window counter keyed by client.
type rateLimiter struct {
	limit  int
	period time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

func newRateLimiter(limit int, period time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:   limit,
		period:  period,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

func (r *rateLimiter) allow(key string) bool {
	if r == nil || r.limit <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if len(r.windows) >= sweepThreshold {
		for k, w := range r.windows {
			if now.Sub(w.start) >= r.period {
				delete(r.windows, k)
			}
		}
	}

	w, ok := r.windows[key]
	if !ok || now.Sub(w.start) >= r.period {
		w = &window{start: now}
		r.windows[key] = w
	}
	w.count++
	return w.count <= r.limit
}

// RateLimitMiddleware rejects clients exceeding perMinute requests.
// A non-positive limit disables it.
func RateLimitMiddleware(perMinute int) gin.HandlerFunc {
	limiter := newRateLimiter(perMinute, time.Minute)
	return func(c *gin.Context) {
		if !limiter.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "too many requests",
				Code:  "rate_limited",
			})
			return
		}
		c.Next()
	}
}
