package floorplans

import (
	"bytes"
	"context"
	"image"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sitewalk/sitewalk/internal/annotation"
	"github.com/sitewalk/sitewalk/internal/apperror"
	"github.com/sitewalk/sitewalk/internal/editor"
	"github.com/sitewalk/sitewalk/internal/geometry"
	"github.com/sitewalk/sitewalk/internal/middleware"
	"github.com/sitewalk/sitewalk/internal/render"
)

// maxExportScale bounds the ?scale= of raster exports.
const maxExportScale = 8.0

// pageScene gathers what the server-side renderers need for one page.
func (h *Handler) pageScene(ctx context.Context, fpID string, page int, renderScale float64) (*annotation.Floorplan, render.Scene, error) {
	fp, err := h.floorplans.GetFloorplan(ctx, fpID)
	if err != nil {
		return nil, render.Scene{}, err
	}
	if page > fp.PageCount {
		return nil, render.Scene{}, apperror.NewNotFound("page not found")
	}

	markers, err := h.markers.ListMarkers(ctx, fpID, page)
	if err != nil {
		return nil, render.Scene{}, err
	}
	layers, err := h.floorplans.ListLayers(ctx, fpID)
	if err != nil {
		return nil, render.Scene{}, err
	}
	cal, err := h.floorplans.GetCalibration(ctx, fpID, page)
	if err != nil {
		return nil, render.Scene{}, err
	}

	return fp, render.Scene{
		Markers:     markers,
		Layers:      layers,
		Page:        page,
		Transform:   geometry.Transform{RenderScale: renderScale, Zoom: 1},
		Calibration: cal,
	}, nil
}

// pagePixels is the pixel size of a page at a render scale.
func pagePixels(fp *annotation.Floorplan, page int, renderScale float64) (int, int) {
	size := fp.Page(page)
	return int(math.Ceil(size.Width * renderScale)), int(math.Ceil(size.Height * renderScale))
}

// View renders the viewer page for one floorplan page.
// GET /floorplans/:id/view?page=n
func (h *Handler) View(c echo.Context) error {
	page, err := pageParam(c)
	if err != nil {
		return err
	}
	fp, scene, err := h.pageScene(c.Request().Context(), c.Param("id"), page, 1)
	if err != nil {
		return err
	}
	scene.ShowAllLabels = true

	width, height := pagePixels(fp, page, 1)
	fp.PDFData = nil
	data := ViewData{
		Floorplan:   fp,
		Page:        page,
		Markers:     scene.Markers,
		Layers:      scene.Layers,
		Calibration: scene.Calibration,
		Overlay:     render.SVGString(scene, width, height),
		Width:       width,
		Height:      height,
	}
	return middleware.Render(c, http.StatusOK, ViewPage(data))
}

// Overlay returns the marker overlay of a page as SVG at native size.
// GET /floorplans/:id/overlay.svg?page=n
func (h *Handler) Overlay(c echo.Context) error {
	page, err := pageParam(c)
	if err != nil {
		return err
	}
	fp, scene, err := h.pageScene(c.Request().Context(), c.Param("id"), page, 1)
	if err != nil {
		return err
	}
	scene.ShowAllLabels = c.QueryParam("labels") != "selected"

	width, height := pagePixels(fp, page, 1)
	var buf bytes.Buffer
	if err := render.SVG(&buf, scene, width, height); err != nil {
		return apperror.NewInternal(err)
	}
	return c.Blob(http.StatusOK, "image/svg+xml", buf.Bytes())
}

// Export returns a PNG of a page raster with the overlay composited on
// top. ?scale= sets pixels per PDF point; ?overlay=false omits markers.
// GET /floorplans/:id/export.png?page=n
func (h *Handler) Export(c echo.Context) error {
	page, err := pageParam(c)
	if err != nil {
		return err
	}
	scale := 1.0
	if raw := c.QueryParam("scale"); raw != "" {
		scale, err = strconv.ParseFloat(raw, 64)
		if err != nil || !(scale > 0 && scale <= maxExportScale) {
			return apperror.NewBadRequest("scale must be in (0, 8]")
		}
	}

	ctx := c.Request().Context()
	fp, scene, err := h.pageScene(ctx, c.Param("id"), page, scale)
	if err != nil {
		return err
	}
	if c.QueryParam("overlay") == "false" {
		scene.Markers = nil
	}
	scene.ShowAllLabels = true

	width, height := pagePixels(fp, page, scale)
	if width > editor.MaxRasterSide || height > editor.MaxRasterSide {
		return apperror.NewBadRequest("export too large; lower the scale")
	}

	var background image.Image
	if bg, err := (editor.ContentLoader{}).LoadPage(ctx, fp, page, scale); err != nil {
		slog.Warn("export without page background",
			slog.String("floorplan_id", fp.ID),
			slog.Int("page", page),
			slog.Any("error", err),
		)
	} else {
		background = bg
	}

	var buf bytes.Buffer
	if err := render.EncodePNG(&buf, render.Raster(scene, background, width, height)); err != nil {
		return apperror.NewInternal(err)
	}
	c.Response().Header().Set("Content-Disposition",
		`inline; filename="floorplan-page-`+strconv.Itoa(page)+`.png"`)
	return c.Blob(http.StatusOK, "image/png", buf.Bytes())
}
