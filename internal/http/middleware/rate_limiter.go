package middleware

import (
	"net/http"
	"strconv"
	"sync"

	"studio-store/internal/auth"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

const (
	headerRateLimit     = "X-RateLimit-Limit"
	headerRateRemaining = "X-RateLimit-Remaining"
	headerRetryAfter    = "Retry-After"
	msgRateLimited      = "rate limit exceeded"
)

// RateLimiter implements token bucket rate limiting per principal
type RateLimiter struct {
	limiters sync.Map // key -> *rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewRateLimiter creates a new rate limiter
// requestsPerSecond: number of requests allowed per second
// burst: maximum burst size
func NewRateLimiter(requestsPerSecond int, burst int) *RateLimiter {
	return &RateLimiter{
		rate:  rate.Limit(requestsPerSecond),
		burst: burst,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	limiter, _ := rl.limiters.LoadOrStore(key, rate.NewLimiter(rl.rate, rl.burst))
	return limiter.(*rate.Limiter)
}

// Allow checks if a request should be allowed for the given key
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// Middleware limits signed-in users by user id and everyone else by client IP.
// It must run after auth.Middleware.Resolve to see the principal.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			limiter := rl.getLimiter(limiterKey(c))
			c.Response().Header().Set(headerRateLimit, strconv.Itoa(rl.burst))

			if !limiter.Allow() {
				c.Response().Header().Set(headerRateRemaining, "0")
				c.Response().Header().Set(headerRetryAfter, "1")
				return echo.NewHTTPError(http.StatusTooManyRequests, msgRateLimited)
			}

			c.Response().Header().Set(headerRateRemaining, strconv.Itoa(int(limiter.Tokens())))
			return next(c)
		}
	}
}

// limiterKey buckets users by id and everyone else by address. Administrators
// share one secret, so their calls are also split by address.
func limiterKey(c echo.Context) string {
	principal := auth.GetPrincipal(c)
	switch principal.Kind {
	case auth.KindUser:
		return "user:" + principal.UserID
	case auth.KindAdmin:
		return "admin:" + c.RealIP()
	default:
		return "ip:" + c.RealIP()
	}
}

// StrictRateLimiter is a more aggressive rate limiter for sensitive endpoints
type StrictRateLimiter struct {
	*RateLimiter
}

// NewStrictRateLimiter creates a strict rate limiter for sensitive operations
func NewStrictRateLimiter() *StrictRateLimiter {
	return &StrictRateLimiter{
		RateLimiter: NewRateLimiter(5, 10),
	}
}

// LoginRateLimiter limits the session broker. Its caller logs in every user, so
// it gets more room than the other administrator endpoints.
type LoginRateLimiter struct {
	*RateLimiter
}

func NewLoginRateLimiter() *LoginRateLimiter {
	return &LoginRateLimiter{
		RateLimiter: NewRateLimiter(20, 40),
	}
}

// GlobalRateLimiter is a lenient rate limiter for general API usage
type GlobalRateLimiter struct {
	*RateLimiter
}

// NewGlobalRateLimiter creates a global rate limiter
func NewGlobalRateLimiter() *GlobalRateLimiter {
	return &GlobalRateLimiter{
		RateLimiter: NewRateLimiter(100, 200),
	}
}
