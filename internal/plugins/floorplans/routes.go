package floorplans

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes mounts the JSON API on api (the /api/v1 group) and the
// viewer pages on web. upload guards the upload endpoint, typically a rate
// limiter.
func RegisterRoutes(api *echo.Group, web *echo.Echo, h *Handler, upload echo.MiddlewareFunc) {
	api.GET("/projects/:pid/floorplans", h.ListFloorplans)
	if upload != nil {
		api.POST("/projects/:pid/floorplans", h.Upload, upload)
	} else {
		api.POST("/projects/:pid/floorplans", h.Upload)
	}

	fp := api.Group("/floorplans/:id")
	fp.GET("", h.GetFloorplan)
	fp.PUT("", h.UpdateFloorplan)
	fp.DELETE("", h.DeleteFloorplan)

	// Layers. The static reorder route is matched before /:lid.
	fp.GET("/layers", h.ListLayers)
	fp.POST("/layers", h.CreateLayer)
	fp.PUT("/layers/reorder", h.ReorderLayers)
	fp.PUT("/layers/:lid", h.UpdateLayer)
	fp.DELETE("/layers/:lid", h.DeleteLayer)

	fp.GET("/calibration", h.GetCalibration)
	fp.POST("/calibration", h.SaveCalibration)

	// Markers.
	fp.GET("/markers", h.ListMarkers)
	fp.POST("/markers", h.CreateMarker)
	fp.POST("/markers/duplicate", h.DuplicateMarker)
	fp.PATCH("/markers/:markerId", h.UpdateMarker)
	fp.DELETE("/markers/:markerId", h.DeleteMarker)
	fp.GET("/markers/:markerId/history", h.MarkerHistory)
	fp.GET("/markers/:markerId/comments", h.ListComments)
	fp.POST("/markers/:markerId/comments", h.AddComment)

	fp.GET("/events", h.Events)
	fp.GET("/overlay.svg", h.Overlay)
	fp.GET("/export.png", h.Export)

	// Viewer pages.
	web.GET("/floorplans/:id/view", h.View)
	web.GET("/floorplans/:id/overlay.svg", h.Overlay)
	web.GET("/floorplans/:id/export.png", h.Export)
}
