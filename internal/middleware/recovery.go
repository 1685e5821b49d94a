package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"

	"github.com/sitewalk/sitewalk/internal/apperror"
)

// Recovery turns a panicking handler into a 500 handled by the app error
// handler, logging the panic value and stack.
func Recovery() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (returnErr error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				slog.Error("panic recovered",
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
					slog.String("method", c.Request().Method),
					slog.String("path", c.Request().URL.Path),
				)
				returnErr = apperror.NewInternal(fmt.Errorf("panic: %v", r))
			}()

			return next(c)
		}
	}
}
