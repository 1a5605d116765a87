package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"CoinOdds/pkg/logger"
)

// RequestLogging tags each request with an id, echoed in X-Request-ID, and
// writes one access line when it completes. Server errors log at error level.
func RequestLogging(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req, res := c.Request(), c.Response()

			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			res.Header().Set(echo.HeaderXRequestID, id)

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			emit := log.Info
			if res.Status >= 500 {
				emit = log.Error
			}
			emit("http request",
				logger.String("request_id", id),
				logger.String("method", req.Method),
				logger.String("route", c.Path()),
				logger.String("uri", req.RequestURI),
				logger.String("remote_ip", c.RealIP()),
				logger.Int("status", res.Status),
				logger.Int("bytes", int(res.Size)),
				logger.Duration("latency_ms", time.Since(start)),
			)
			return err
		}
	}
}
