package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// window tracks requests from one client IP in the current fixed window.
type window struct {
	count int
	start time.Time
}

// RateLimiter counts requests per client IP in fixed windows. It is used
// on floorplan uploads, which carry whole documents.
type RateLimiter struct {
	max    int
	period time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// NewRateLimiter allows max requests per IP in each period.
func NewRateLimiter(max int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		max:     max,
		period:  period,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

// Allow records a request from ip and reports whether it is within the
// limit, and if not, how long until the window resets.
func (l *RateLimiter) Allow(ip string) (bool, time.Duration) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[ip]
	if !ok || now.Sub(w.start) >= l.period {
		l.windows[ip] = &window{count: 1, start: now}
		return true, 0
	}
	w.count++
	if w.count > l.max {
		return false, l.period - now.Sub(w.start)
	}
	return true, 0
}

// Sweep drops windows that ended more than one period ago.
func (l *RateLimiter) Sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, w := range l.windows {
		if now.Sub(w.start) > 2*l.period {
			delete(l.windows, ip)
		}
	}
}

// Run sweeps expired windows every minute until ctx is done.
func (l *RateLimiter) Run(ctx context.Context) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Sweep()
		}
	}
}

// Middleware rejects requests over the limit with 429 and a Retry-After
// header.
func (l *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ok, wait := l.Allow(c.RealIP())
			if !ok {
				secs := int(wait.Round(time.Second) / time.Second)
				if secs < 1 {
					secs = 1
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"type":    "rate_limited",
					"message": "Too many requests. Please try again later.",
				})
			}
			return next(c)
		}
	}
}
