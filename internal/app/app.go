// Package app is the application bootstrap and dependency injection root.
// It holds the shared infrastructure (DB pool, Redis client, Echo instance)
// and wires the floorplans plugin onto it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/sitewalk/sitewalk/internal/apperror"
	"github.com/sitewalk/sitewalk/internal/config"
	"github.com/sitewalk/sitewalk/internal/middleware"
	"github.com/sitewalk/sitewalk/internal/templates/pages"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the MariaDB connection pool.
	DB *sql.DB

	// Redis backs the marker cache and change fan-out. Nil disables both.
	Redis *redis.Client

	// Echo is the HTTP server instance.
	Echo *echo.Echo

	// cancel stops background workers started by RegisterRoutes.
	cancel context.CancelFunc
}

// New creates a new App instance with the given dependencies and configures
// the Echo server with global middleware and error handling.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client) *App {
	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	// Site-walk servers usually sit behind a reverse proxy on the LAN or a
	// Docker network, so trust the private ranges for c.RealIP().
	middleware.TrustedProxies(e, []string{
		"127.0.0.0/8",
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"fd00::/8",
	})

	middleware.LayoutInjector = middleware.InjectLayout

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Echo:   e,
	}

	app.setupMiddleware()
	e.HTTPErrorHandler = app.errorHandler

	e.Static("/static", "static")

	return app
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: outermost (recovery) runs first, innermost (CSRF) runs last.
func (a *App) setupMiddleware() {
	// Panic recovery -- must be outermost to catch panics from all other middleware.
	a.Echo.Use(middleware.Recovery())

	// Identity runs before logging so the request log carries the user id.
	a.Echo.Use(middleware.Identity())
	a.Echo.Use(middleware.RequestLogger())

	a.Echo.Use(middleware.SecurityHeaders())

	// CORS for field tablets running the editor from another origin.
	a.Echo.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   []string{a.Config.BaseURL},
		AllowCredentials: true,
	}))

	// CSRF protects the server-rendered pages; the JSON API skips it.
	a.Echo.Use(middleware.CSRF())
}

// errorHandler maps domain errors (AppError) to HTTP responses: JSON
// {"type","message"} for the API and an error page for the browser.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	typ := "internal_error"
	message := defaultErrorMessage(code)

	var appErr *apperror.AppError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		code = appErr.Code
		typ = appErr.Type
		message = appErr.Message
		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}
	case errors.As(err, &echoErr):
		code = echoErr.Code
		typ = errorType(code)
		if msg, ok := echoErr.Message.(string); ok {
			message = msg
		} else {
			message = defaultErrorMessage(code)
		}
	default:
		slog.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Request().URL.Path),
		)
	}

	if middleware.IsAPI(c) {
		if jsonErr := c.JSON(code, map[string]string{
			"type":    typ,
			"message": message,
		}); jsonErr != nil {
			slog.Error("writing error response", slog.Any("error", jsonErr))
		}
		return
	}

	if renderErr := middleware.Render(c, code, pages.ErrorPage(code, message)); renderErr != nil {
		slog.Error("rendering error page", slog.Any("error", renderErr))
	}
}

// errorType names an HTTP status for the JSON error body when the error
// did not come from the domain layer.
func errorType(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestEntityTooLarge:
		return "too_large"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusServiceUnavailable:
		return "unavailable"
	}
	if code >= 500 {
		return "internal_error"
	}
	return "error"
}

// defaultErrorMessage returns a user-friendly message for common HTTP status codes
// when no specific message was provided by the error.
func defaultErrorMessage(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "The request was invalid or cannot be processed."
	case http.StatusForbidden:
		return "You don't have permission to access this resource."
	case http.StatusNotFound:
		return "The page you're looking for doesn't exist or has been moved."
	case http.StatusMethodNotAllowed:
		return "This action is not allowed."
	case http.StatusConflict:
		return "This action conflicts with the current state."
	case http.StatusRequestEntityTooLarge:
		return "The uploaded file is too large."
	case http.StatusUnprocessableEntity:
		return "The submitted data could not be processed."
	case http.StatusTooManyRequests:
		return "You're making too many requests. Please slow down."
	case http.StatusServiceUnavailable:
		return "The service is temporarily unavailable. Please try again later."
	default:
		return "Something went wrong on our end. Please try again."
	}
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting site-walk server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
	)
	return a.Echo.Start(addr)
}

// Shutdown stops background workers and drains in-flight requests.
func (a *App) Shutdown(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	return a.Echo.Shutdown(ctx)
}
