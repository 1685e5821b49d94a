package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CORSConfig holds configuration for the CORS middleware.
type CORSConfig struct {
	// AllowedOrigins lists origins allowed to call the API from a browser.
	// "*" allows any origin and disables credentials.
	AllowedOrigins []string

	// AllowCredentials lets browsers send cookies and the identity headers
	// on cross-origin requests.
	AllowCredentials bool
}

var (
	corsMethods = strings.Join([]string{
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
		http.MethodOptions,
	}, ", ")

	corsHeaders = strings.Join([]string{
		"Content-Type",
		"X-Requested-With",
		csrfHeaderName,
		userIDHeader,
		userNameHeader,
	}, ", ")
)

// CORS returns middleware that answers cross-origin requests from the
// configured origins. Editors embedded in other site-walk tools call the
// API cross-origin; the viewer pages are same-origin.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	allowAll := false
	originSet := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
		originSet[o] = true
	}

	if allowAll && cfg.AllowCredentials {
		slog.Warn("CORS: wildcard origin cannot be combined with credentials; credentials disabled")
		cfg.AllowCredentials = false
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			origin := req.Header.Get("Origin")
			if origin == "" || !(allowAll || originSet[origin]) {
				// Same-origin, or an origin the browser will block on its own.
				return next(c)
			}

			h := c.Response().Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if req.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", corsMethods)
				h.Set("Access-Control-Allow-Headers", corsHeaders)
				h.Set("Access-Control-Max-Age", "3600")
				return c.NoContent(http.StatusNoContent)
			}

			h.Set("Access-Control-Expose-Headers", "Content-Disposition")
			return next(c)
		}
	}
}
