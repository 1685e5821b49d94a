package app

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sitewalk/sitewalk/internal/middleware"
	"github.com/sitewalk/sitewalk/internal/plugins/floorplans"
	"github.com/sitewalk/sitewalk/internal/templates/pages"
)

// healthTimeout bounds the dependency pings of /healthz.
const healthTimeout = 2 * time.Second

// RegisterRoutes sets up all application routes and starts the background
// workers they depend on. Shutdown stops the workers.
func (a *App) RegisterRoutes() {
	e := a.Echo

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	e.GET("/", func(c echo.Context) error {
		return middleware.Render(c, http.StatusOK, pages.Landing())
	})
	e.GET("/healthz", a.health)

	// --- Floorplans plugin ---
	cache := floorplans.NewMarkerCache(a.Redis, a.Config.Markers.CacheTTL)
	events := floorplans.NewEventBus(a.Redis)
	fpRepo := floorplans.NewFloorplanRepository(a.DB)
	markerRepo := floorplans.NewMarkerRepository(a.DB)

	fpService := floorplans.NewFloorplanService(fpRepo, cache, events, a.Config.Upload.MaxSize)
	markerService := floorplans.NewMarkerService(markerRepo, fpRepo, cache, events)
	handler := floorplans.NewHandler(fpService, markerService, events)

	limiter := middleware.NewRateLimiter(a.Config.Upload.RateLimit, time.Minute)
	go limiter.Run(ctx)

	floorplans.RegisterRoutes(e.Group("/api/v1"), e, handler, limiter.Middleware())
}

// health reports whether MariaDB and Redis are reachable. Redis is optional,
// so a nil client is not a failure.
func (a *App) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	status := map[string]string{"status": "ok", "database": "ok"}
	code := http.StatusOK

	if a.DB == nil {
		status["database"] = "missing"
		code = http.StatusServiceUnavailable
	} else if err := a.DB.PingContext(ctx); err != nil {
		status["database"] = "unreachable"
		code = http.StatusServiceUnavailable
	}

	if a.Redis == nil {
		status["redis"] = "disabled"
	} else if err := a.Redis.Ping(ctx).Err(); err != nil {
		status["redis"] = "unreachable"
		code = http.StatusServiceUnavailable
	} else {
		status["redis"] = "ok"
	}

	if code != http.StatusOK {
		status["status"] = "degraded"
	}
	return c.JSON(code, status)
}
