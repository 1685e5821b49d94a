package annotation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sitewalk/sitewalk/internal/geometry"
)

// NewUniqueID returns a fresh identifier for a new logical annotation.
func NewUniqueID() string {
	return uuid.NewString()
}

// Changes is a partial edit. Nil fields keep the existing value. Decoding a
// full marker body into Changes is fine: identity and lineage fields are not
// part of it and so are ignored.
//
// An explicit "layer_id": null in JSON sets ClearLayer, moving the marker
// off its layer.
type Changes struct {
	Type       *MarkerType       `json:"marker_type,omitempty"`
	Page       *int              `json:"page,omitempty"`
	LayerID    *int64            `json:"layer_id,omitempty"`
	ClearLayer bool              `json:"-"`
	X          *float64          `json:"x,omitempty"`
	Y          *float64          `json:"y,omitempty"`
	EndX       *float64          `json:"end_x,omitempty"`
	EndY       *float64          `json:"end_y,omitempty"`
	Width      *float64          `json:"width,omitempty"`
	Height     *float64          `json:"height,omitempty"`
	Rotation   *float64          `json:"rotation,omitempty"`
	Points     *[]geometry.Point `json:"points,omitempty"`

	Color       *string  `json:"color,omitempty"`
	FillColor   *string  `json:"fill_color,omitempty"`
	Opacity     *float64 `json:"opacity,omitempty"`
	LineWidth   *float64 `json:"line_width,omitempty"`
	Label       *string  `json:"label,omitempty"`
	TextContent *string  `json:"text_content,omitempty"`
	FontSize    *float64 `json:"font_size,omitempty"`
	FontFamily  *string  `json:"font_family,omitempty"`

	AuthorID   *string `json:"author_id,omitempty"`
	AuthorName *string `json:"author_name,omitempty"`

	EquipmentType *string `json:"equipment_type,omitempty"`
	EquipmentID   *string `json:"equipment_id,omitempty"`
}

// UnmarshalJSON decodes a partial edit, telling an absent layer_id apart
// from an explicit null.
func (ch *Changes) UnmarshalJSON(data []byte) error {
	type plain Changes
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	raw, ok := fields["layer_id"]
	p.ClearLayer = ok && bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
	*ch = Changes(p)
	return nil
}

// CreateVersion produces the record that supersedes existing: same UniqueID,
// Version+1, ParentID pointing at existing.ID, with changes overlaid. The
// result has no ID yet; storage assigns one. Changing the marker type is
// refused with ErrTypeMismatch.
func CreateVersion(existing Marker, ch Changes) (Marker, error) {
	if ch.Type != nil && *ch.Type != existing.Type {
		return Marker{}, fmt.Errorf("%w: %s to %s", ErrTypeMismatch, existing.Type, *ch.Type)
	}

	next := existing.Clone()
	apply(&next, ch)

	parent := existing.ID
	next.ID = 0
	next.ParentID = &parent
	next.Version = existing.Version + 1
	next.UniqueID = existing.UniqueID
	next.CreatedAt = time.Time{}
	next.UpdatedAt = time.Time{}
	return next, nil
}

// Duplicate copies m into a brand-new annotation shifted by offset. The copy
// starts its own version chain.
func Duplicate(m Marker, offset geometry.Point, uniqueID string) Marker {
	d := m.Clone()
	d.Translate(offset)
	d.ID = 0
	d.UniqueID = uniqueID
	d.Version = 1
	d.ParentID = nil
	d.CreatedAt = time.Time{}
	d.UpdatedAt = time.Time{}
	return d
}

func apply(m *Marker, ch Changes) {
	if ch.Page != nil {
		m.Page = *ch.Page
	}
	switch {
	case ch.ClearLayer:
		m.LayerID = nil
	case ch.LayerID != nil:
		m.LayerID = cloneInt(ch.LayerID)
	}
	setFloat(&m.X, ch.X)
	setFloat(&m.Y, ch.Y)
	setFloat(&m.EndX, ch.EndX)
	setFloat(&m.EndY, ch.EndY)
	setFloat(&m.Width, ch.Width)
	setFloat(&m.Height, ch.Height)
	if ch.Rotation != nil {
		m.Rotation = *ch.Rotation
	}
	if ch.Points != nil {
		m.Points = append([]geometry.Point(nil), (*ch.Points)...)
	}
	if ch.Color != nil {
		m.Color = *ch.Color
	}
	setString(&m.FillColor, ch.FillColor)
	setFloat(&m.Opacity, ch.Opacity)
	setFloat(&m.LineWidth, ch.LineWidth)
	setString(&m.Label, ch.Label)
	setString(&m.TextContent, ch.TextContent)
	setFloat(&m.FontSize, ch.FontSize)
	setString(&m.FontFamily, ch.FontFamily)
	setString(&m.AuthorID, ch.AuthorID)
	setString(&m.AuthorName, ch.AuthorName)
	setString(&m.EquipmentType, ch.EquipmentType)
	setString(&m.EquipmentID, ch.EquipmentID)
}

func setFloat(dst **float64, src *float64) {
	if src != nil {
		*dst = cloneFloat(src)
	}
}

func setString(dst **string, src *string) {
	if src != nil {
		*dst = cloneString(src)
	}
}
