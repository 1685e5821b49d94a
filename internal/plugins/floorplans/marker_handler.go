package floorplans

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sitewalk/sitewalk/internal/annotation"
	"github.com/sitewalk/sitewalk/internal/apperror"
)

// ListMarkers returns the current version of every marker on a page.
// GET /floorplans/:id/markers?page=n
func (h *Handler) ListMarkers(c echo.Context) error {
	page, err := pageParam(c)
	if err != nil {
		return err
	}

	markers, err := h.markers.ListMarkers(c.Request().Context(), c.Param("id"), page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, markers)
}

// CreateMarker stores a new marker as version 1 of a new chain.
// POST /floorplans/:id/markers
func (h *Handler) CreateMarker(c echo.Context) error {
	var req annotation.Marker
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	m, err := h.markers.CreateMarker(c.Request().Context(), c.Param("id"), req, actor(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, m)
}

// DuplicateMarker stores a copy of a marker under a fresh unique ID. The
// body is the already-offset copy.
// POST /floorplans/:id/markers/duplicate
func (h *Handler) DuplicateMarker(c echo.Context) error {
	var req annotation.Marker
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	m, err := h.markers.DuplicateMarker(c.Request().Context(), c.Param("id"), req, actor(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, m)
}

// UpdateMarker supersedes a marker with a new version carrying the given
// changes. Editing a superseded version answers 409.
// PATCH /floorplans/:id/markers/:markerId
func (h *Handler) UpdateMarker(c echo.Context) error {
	id, err := int64Param(c, "markerId")
	if err != nil {
		return err
	}
	var ch annotation.Changes
	if err := c.Bind(&ch); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	m, err := h.markers.UpdateMarker(c.Request().Context(), c.Param("id"), id, ch, actor(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

// DeleteMarker removes a marker's whole version chain and its comments.
// DELETE /floorplans/:id/markers/:markerId
func (h *Handler) DeleteMarker(c echo.Context) error {
	id, err := int64Param(c, "markerId")
	if err != nil {
		return err
	}
	if err := h.markers.DeleteMarker(c.Request().Context(), c.Param("id"), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// MarkerHistory returns every version of a marker, oldest first.
// GET /floorplans/:id/markers/:markerId/history
func (h *Handler) MarkerHistory(c echo.Context) error {
	id, err := int64Param(c, "markerId")
	if err != nil {
		return err
	}

	versions, err := h.markers.History(c.Request().Context(), c.Param("id"), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, versions)
}

// --- Comments ---

// ListComments returns the comments of a marker's whole version chain.
// GET /floorplans/:id/markers/:markerId/comments
func (h *Handler) ListComments(c echo.Context) error {
	id, err := int64Param(c, "markerId")
	if err != nil {
		return err
	}

	comments, err := h.markers.ListComments(c.Request().Context(), c.Param("id"), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, comments)
}

// AddComment appends a comment to a marker.
// POST /floorplans/:id/markers/:markerId/comments
func (h *Handler) AddComment(c echo.Context) error {
	id, err := int64Param(c, "markerId")
	if err != nil {
		return err
	}
	var req CommentInput
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	comment, err := h.markers.AddComment(c.Request().Context(), c.Param("id"), id, req, actor(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, comment)
}
