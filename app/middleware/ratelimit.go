package middleware

import (
	"net/http"
	"strconv"

	"github.com/stacklaunch-io/ms-go-accounts/config"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// NewRateLimiter returns a fixed-window per-IP limiter backed by Redis,
// intended for the credential endpoints. When Redis is unavailable or the
// limiter is disabled, requests pass through unchanged (fail-open).
func NewRateLimiter(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}

	windowSeconds := int(cfg.Window.Seconds())
	if windowSeconds < 1 {
		windowSeconds = 1
	}

	// INCR then EXPIRE on first hit keeps the whole window in one round trip.
	windowScript := redis.NewScript(`
		local count = redis.call('INCR', KEYS[1])
		if count == 1 then
			redis.call('EXPIRE', KEYS[1], ARGV[1])
		end
		return count
	`)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if ip == "" {
				ip = "unknown"
			}
			key := cfg.Prefix + ":" + c.Path() + ":" + ip

			count, err := windowScript.Run(c.Request().Context(), rdb, []string{key}, windowSeconds).Int64()
			if err != nil {
				logrus.WithError(err).WithField("key", key).Warn("rate limiter unavailable, allowing request")
				return next(c)
			}

			remaining := int64(cfg.Limit) - count
			if remaining < 0 {
				remaining = 0
			}
			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if count > int64(cfg.Limit) {
				c.Response().Header().Set("Retry-After", strconv.Itoa(windowSeconds))
				return c.JSON(http.StatusTooManyRequests, map[string]any{
					"error":       "too many requests",
					"retry_after": windowSeconds,
				})
			}

			return next(c)
		}
	}
}
