// Package floorplans is the server side of floorplan annotation: uploaded
// documents, their layers, per-page calibrations, versioned markers and
// marker comments. It exposes the REST API the editor client consumes, a
// server-rendered viewer, and a change stream for live viewers.
package floorplans

import (
	"github.com/sitewalk/sitewalk/internal/annotation"
	"github.com/sitewalk/sitewalk/internal/calibration"
)

// --- Request DTOs ---

// UploadInput is the input for creating a floorplan from an uploaded file.
type UploadInput struct {
	ProjectID    string
	Name         string
	OriginalName string
	FileBytes    []byte
	CreatedBy    string
}

// UpdateFloorplanInput changes floorplan metadata. Content is immutable.
type UpdateFloorplanInput struct {
	Name string `json:"name"`
}

// LayerInput creates or updates a layer. A nil Visible leaves visibility
// unchanged on update and defaults to visible on create.
type LayerInput struct {
	Name    string `json:"name"`
	Color   string `json:"color"`
	Visible *bool  `json:"visible"`
}

// ReorderInput lists every layer ID of a floorplan in the new draw order.
type ReorderInput struct {
	LayerIDs []int64 `json:"layer_ids"`
}

// CommentInput is the body of a new marker comment.
type CommentInput struct {
	Body string `json:"body"`
}

// Actor identifies who performs a mutation, as reported by the upstream
// auth proxy.
type Actor struct {
	ID   string
	Name string
}

// idPtr returns nil for an empty ID so anonymous actors store NULL.
func (a Actor) idPtr() *string {
	if a.ID == "" {
		return nil
	}
	return &a.ID
}

func (a Actor) namePtr() *string {
	if a.Name == "" {
		return nil
	}
	return &a.Name
}

// --- View data ---

// ViewData holds everything the viewer page renders for one page.
type ViewData struct {
	Floorplan   *annotation.Floorplan
	Page        int
	Markers     []annotation.Marker
	Layers      []annotation.Layer
	Calibration *calibration.Calibration
	Overlay     string
	Width       int
	Height      int
}

// HasPrev reports whether a previous page exists.
func (d ViewData) HasPrev() bool { return d.Page > 1 }

// HasNext reports whether a next page exists.
func (d ViewData) HasNext() bool { return d.Floorplan != nil && d.Page < d.Floorplan.PageCount }
