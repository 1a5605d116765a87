package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"

	"CoinOdds/pkg/logger"
)

const stackSize = 8 << 10

// Recover converts a handler panic into a 500 and logs the panicking goroutine's stack.
func Recover(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}

				stack := make([]byte, stackSize)
				stack = stack[:runtime.Stack(stack, false)]
				log.Error("handler panic",
					logger.String("route", c.Path()),
					logger.String("panic", fmt.Sprint(r)),
					logger.String("stack", string(stack)))

				status := http.StatusInternalServerError
				err = c.JSON(status, map[string]any{"status": status, "message": http.StatusText(status)})
			}()
			return next(c)
		}
	}
}
