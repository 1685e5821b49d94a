// data.go provides typed context helpers for passing layout data from
// handlers/middleware to Templ templates. This avoids importing plugin
// types in the layouts package; only simple types are stored.
//
// Data flow: Middleware → Echo Context → LayoutInjector → Go Context → Templ
package layouts

import "context"

// ctxKey is a private type for context keys to prevent collisions.
type ctxKey string

const (
	keyUserID     ctxKey = "layout_user_id"
	keyUserName   ctxKey = "layout_user_name"
	keyCSRFToken  ctxKey = "layout_csrf_token"
	keyActivePath ctxKey = "layout_active_path"
)

// SetUserID stores the acting user's ID for templates.
func SetUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyUserID, id)
}

// SetUserName stores the acting user's display name for templates.
func SetUserName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, keyUserName, name)
}

// SetCSRFToken stores the CSRF token forms must echo back.
func SetCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, keyCSRFToken, token)
}

// SetActivePath stores the request path for navigation highlighting.
func SetActivePath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, keyActivePath, path)
}

// GetUserID returns the acting user's ID, or "".
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(keyUserID).(string)
	return v
}

// GetUserName returns the acting user's display name, or "".
func GetUserName(ctx context.Context) string {
	v, _ := ctx.Value(keyUserName).(string)
	return v
}

// GetCSRFToken returns the CSRF token, or "".
func GetCSRFToken(ctx context.Context) string {
	v, _ := ctx.Value(keyCSRFToken).(string)
	return v
}

// GetActivePath returns the request path, or "".
func GetActivePath(ctx context.Context) string {
	v, _ := ctx.Value(keyActivePath).(string)
	return v
}
