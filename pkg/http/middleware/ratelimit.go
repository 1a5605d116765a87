package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"CoinOdds/pkg/ratelimit"
)

// RateLimit rejects requests once the caller's IP exhausts its bucket.
func RateLimit(l *ratelimit.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if l.Allow(c.RealIP()) {
				return next(c)
			}
			c.Response().Header().Set("Retry-After", "5")
			return c.JSON(http.StatusTooManyRequests, map[string]any{
				"status":  http.StatusTooManyRequests,
				"message": http.StatusText(http.StatusTooManyRequests),
			})
		}
	}
}
