package httpapi

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

// operatorLimiter keeps one token bucket per operator (or client IP when the
// request carries no operator).
type operatorLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

func newOperatorLimiter(perMinute, burst int) *operatorLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &operatorLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        rate.Limit(float64(perMinute) / 60),
		burst:    burst,
	}
}

func (l *operatorLimiter) allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.r, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// middleware rechaza con 429 cuando el operador agota su bucket.
func (l *operatorLimiter) middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := operatorID(c)
		if key == "" {
			key = "ip:" + c.IP()
		}
		if !l.allow(key) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests",
			})
		}
		return c.Next()
	}
}
