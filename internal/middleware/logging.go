// Package middleware holds the Echo middleware of the site-walk server.
// Global middleware is registered in internal/app/routes.go; route-specific
// middleware (rate limits) is attached by the plugin route setup.
package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestLogger logs every request once it completes: method, path,
// status, latency and client IP. 4xx responses log at warn, 5xx at error.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			req := c.Request()
			status := c.Response().Status
			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", status),
				slog.Duration("latency", time.Since(start)),
				slog.String("remote_ip", c.RealIP()),
			}
			if req.URL.RawQuery != "" {
				attrs = append(attrs, slog.String("query", req.URL.RawQuery))
			}
			if id := GetUserID(c); id != "" {
				attrs = append(attrs, slog.String("user_id", id))
			}

			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}
			slog.LogAttrs(req.Context(), level, "request", attrs...)

			return err
		}
	}
}
