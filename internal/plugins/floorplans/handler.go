package floorplans

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/sitewalk/sitewalk/internal/apperror"
	"github.com/sitewalk/sitewalk/internal/calibration"
	"github.com/sitewalk/sitewalk/internal/middleware"
)

// Handler processes HTTP requests for the floorplans plugin.
type Handler struct {
	floorplans FloorplanService
	markers    MarkerService
	events     EventBus
	upgrader   websocket.Upgrader
}

// NewHandler creates a floorplans Handler.
func NewHandler(floorplans FloorplanService, markers MarkerService, events EventBus) *Handler {
	return &Handler{
		floorplans: floorplans,
		markers:    markers,
		events:     events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// actor reads the acting user set by the identity middleware.
func actor(c echo.Context) Actor {
	return Actor{ID: middleware.GetUserID(c), Name: middleware.GetUserName(c)}
}

// pageParam reads the ?page= query parameter, defaulting to 1.
func pageParam(c echo.Context) (int, error) {
	raw := c.QueryParam("page")
	if raw == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, apperror.NewBadRequest("page must be a positive integer")
	}
	return page, nil
}

// int64Param parses a numeric path parameter.
func int64Param(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.NewBadRequest("invalid " + name)
	}
	return id, nil
}

// --- Floorplans ---

// ListFloorplans returns a project's floorplans without their content.
// GET /projects/:pid/floorplans
func (h *Handler) ListFloorplans(c echo.Context) error {
	list, err := h.floorplans.ListFloorplans(c.Request().Context(), c.Param("pid"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

// Upload stores a floorplan from a multipart form with "name" and "file".
// POST /projects/:pid/floorplans
func (h *Handler) Upload(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return apperror.NewBadRequest("no file provided")
	}

	src, err := file.Open()
	if err != nil {
		return apperror.NewInternal(err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return apperror.NewInternal(err)
	}

	fp, err := h.floorplans.Upload(c.Request().Context(), UploadInput{
		ProjectID:    c.Param("pid"),
		Name:         c.FormValue("name"),
		OriginalName: file.Filename,
		FileBytes:    data,
		CreatedBy:    middleware.GetUserID(c),
	})
	if err != nil {
		return err
	}

	// The upload response does not echo the document back.
	fp.PDFData = nil
	return c.JSON(http.StatusCreated, fp)
}

// GetFloorplan returns a floorplan including its content.
// GET /floorplans/:id
func (h *Handler) GetFloorplan(c echo.Context) error {
	fp, err := h.floorplans.GetFloorplan(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, fp)
}

// UpdateFloorplan changes floorplan metadata.
// PUT /floorplans/:id
func (h *Handler) UpdateFloorplan(c echo.Context) error {
	var req UpdateFloorplanInput
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	fp, err := h.floorplans.UpdateFloorplan(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return err
	}
	fp.PDFData = nil
	return c.JSON(http.StatusOK, fp)
}

// DeleteFloorplan removes a floorplan with its layers, calibrations,
// markers and comments.
// DELETE /floorplans/:id
func (h *Handler) DeleteFloorplan(c echo.Context) error {
	if err := h.floorplans.DeleteFloorplan(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// --- Layers ---

// ListLayers returns a floorplan's layers in draw order.
// GET /floorplans/:id/layers
func (h *Handler) ListLayers(c echo.Context) error {
	layers, err := h.floorplans.ListLayers(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, layers)
}

// CreateLayer adds a layer on top of the existing ones.
// POST /floorplans/:id/layers
func (h *Handler) CreateLayer(c echo.Context) error {
	var req LayerInput
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	l, err := h.floorplans.CreateLayer(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, l)
}

// UpdateLayer renames, recolors or toggles a layer.
// PUT /floorplans/:id/layers/:lid
func (h *Handler) UpdateLayer(c echo.Context) error {
	id, err := int64Param(c, "lid")
	if err != nil {
		return err
	}
	var req LayerInput
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	l, err := h.floorplans.UpdateLayer(c.Request().Context(), c.Param("id"), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, l)
}

// DeleteLayer removes a layer; its markers become unlayered.
// DELETE /floorplans/:id/layers/:lid
func (h *Handler) DeleteLayer(c echo.Context) error {
	id, err := int64Param(c, "lid")
	if err != nil {
		return err
	}
	if err := h.floorplans.DeleteLayer(c.Request().Context(), c.Param("id"), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ReorderLayers sets the draw order of every layer at once.
// PUT /floorplans/:id/layers/reorder
func (h *Handler) ReorderLayers(c echo.Context) error {
	var req ReorderInput
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	layers, err := h.floorplans.ReorderLayers(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, layers)
}

// --- Calibration ---

// GetCalibration returns the calibration of a page, or 204 when the page
// is uncalibrated.
// GET /floorplans/:id/calibration?page=n
func (h *Handler) GetCalibration(c echo.Context) error {
	page, err := pageParam(c)
	if err != nil {
		return err
	}

	cal, err := h.floorplans.GetCalibration(c.Request().Context(), c.Param("id"), page)
	if err != nil {
		return err
	}
	if cal == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, cal)
}

// SaveCalibration creates or replaces the calibration of a page and
// returns it with the computed scale factor.
// POST /floorplans/:id/calibration
func (h *Handler) SaveCalibration(c echo.Context) error {
	var req calibration.Calibration
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	cal, err := h.floorplans.SaveCalibration(c.Request().Context(), c.Param("id"), req, actor(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cal)
}
