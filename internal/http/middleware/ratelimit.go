package middleware

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

// RateLimiter hands out one token bucket per caller (or per client IP for
// anonymous requests). Buckets idle for limiterIdleTTL are dropped.
type RateLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	buckets   map[string]*bucket
	now       func() time.Time
	lastSweep time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows rps requests per second with the given burst.
// A non-positive rps disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Handler rejects requests over the limit with 429 RATE_LIMITED.
func (r *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if r.limit <= 0 {
			return c.Next()
		}
		key := "ip:" + c.IP()
		if caller, ok := CallerFrom(c); ok {
			key = "user:" + caller.UserID
		}
		if !r.allow(key) {
			c.Set(fiber.HeaderRetryAfter, "1")
			return &Error{Status: fiber.StatusTooManyRequests, Code: "RATE_LIMITED", Message: "too many uploads, slow down"}
		}
		return c.Next()
	}
}

func (r *RateLimiter) allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.lastSweep) > limiterIdleTTL {
		for k, b := range r.buckets {
			if now.Sub(b.lastSeen) > limiterIdleTTL {
				delete(r.buckets, k)
			}
		}
		r.lastSweep = now
	}

	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(r.limit, r.burst)}
		r.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, 1)
}
