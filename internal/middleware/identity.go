package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sitewalk/sitewalk/internal/sanitize"
	"github.com/sitewalk/sitewalk/internal/templates/layouts"
)

// Headers set by the upstream auth proxy.
const (
	userIDHeader   = "X-User-ID"
	userNameHeader = "X-User-Name"
)

// Context keys for the acting user.
const (
	ctxUserID   = "user_id"
	ctxUserName = "user_name"
)

// maxUserIDLength matches the created_by/author_id column width.
const maxUserIDLength = 64

// Identity copies the acting user from the auth proxy headers into the
// Echo context. Requests without the headers are anonymous; the proxy is
// the only component that decides who may reach the server.
func Identity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := strings.TrimSpace(req.Header.Get(userIDHeader))
			if len(id) > maxUserIDLength {
				id = id[:maxUserIDLength]
			}
			c.Set(ctxUserID, id)
			c.Set(ctxUserName, sanitize.Text(req.Header.Get(userNameHeader)))
			return next(c)
		}
	}
}

// GetUserID returns the acting user's ID, or "" when anonymous.
func GetUserID(c echo.Context) string {
	id, _ := c.Get(ctxUserID).(string)
	return id
}

// GetUserName returns the acting user's display name, or "".
func GetUserName(c echo.Context) string {
	name, _ := c.Get(ctxUserName).(string)
	return name
}

// InjectLayout is the LayoutInjector used by the server: it exposes the
// acting user, CSRF token and request path to templates.
func InjectLayout(c echo.Context, ctx context.Context) context.Context {
	ctx = layouts.SetUserID(ctx, GetUserID(c))
	ctx = layouts.SetUserName(ctx, GetUserName(c))
	ctx = layouts.SetCSRFToken(ctx, GetCSRFToken(c))
	return layouts.SetActivePath(ctx, c.Request().URL.Path)
}
