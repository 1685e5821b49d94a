package annotation

import (
	"time"

	"github.com/sitewalk/sitewalk/internal/geometry"
)

// Marker is one persisted annotation record. Records are never edited in
// place; an edit produces a new record sharing UniqueID (see CreateVersion).
// All coordinates are PDF points with the origin at the top-left of the page.
type Marker struct {
	ID          int64      `json:"id,omitempty"`
	UniqueID    string     `json:"unique_id"`
	FloorplanID string     `json:"floorplan_id"`
	Page        int        `json:"page"`
	Type        MarkerType `json:"marker_type"`
	LayerID     *int64     `json:"layer_id,omitempty"`

	// Geometry.
	X        *float64         `json:"x,omitempty"`
	Y        *float64         `json:"y,omitempty"`
	EndX     *float64         `json:"end_x,omitempty"`
	EndY     *float64         `json:"end_y,omitempty"`
	Width    *float64         `json:"width,omitempty"`
	Height   *float64         `json:"height,omitempty"`
	Rotation float64          `json:"rotation,omitempty"`
	Points   []geometry.Point `json:"points,omitempty"`

	// Style.
	Color       string   `json:"color,omitempty"`
	FillColor   *string  `json:"fill_color,omitempty"`
	Opacity     *float64 `json:"opacity,omitempty"`
	LineWidth   *float64 `json:"line_width,omitempty"`
	Label       *string  `json:"label,omitempty"`
	TextContent *string  `json:"text_content,omitempty"`
	FontSize    *float64 `json:"font_size,omitempty"`
	FontFamily  *string  `json:"font_family,omitempty"`

	// Lineage.
	Version    int     `json:"version"`
	ParentID   *int64  `json:"parent_id"`
	AuthorID   *string `json:"author_id,omitempty"`
	AuthorName *string `json:"author_name,omitempty"`

	// Equipment link, informational only.
	EquipmentType *string `json:"equipment_type,omitempty"`
	EquipmentID   *string `json:"equipment_id,omitempty"`

	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Float returns a pointer to v, for filling optional geometry fields.
func Float(v float64) *float64 { return &v }

// String returns a pointer to s, for filling optional style fields.
func String(s string) *string { return &s }

// Int64 returns a pointer to v, for filling layer references.
func Int64(v int64) *int64 { return &v }

// Position returns the anchor point and whether one is set.
func (m *Marker) Position() (geometry.Point, bool) {
	if m.X == nil || m.Y == nil {
		return geometry.Point{}, false
	}
	return geometry.Pt(*m.X, *m.Y), true
}

// SetPosition sets the anchor point.
func (m *Marker) SetPosition(p geometry.Point) {
	m.X, m.Y = Float(p.X), Float(p.Y)
}

// End returns the second defining point of a shape: the explicit end position
// when set, otherwise position plus width/height.
func (m *Marker) End() (geometry.Point, bool) {
	if m.EndX != nil && m.EndY != nil {
		return geometry.Pt(*m.EndX, *m.EndY), true
	}
	p, ok := m.Position()
	if !ok || m.Width == nil || m.Height == nil {
		return geometry.Point{}, false
	}
	return geometry.Pt(p.X+*m.Width, p.Y+*m.Height), true
}

// Bounds returns the PDF-space bounding box of the marker's geometry.
// Point markers yield a degenerate rect at their position.
func (m *Marker) Bounds() geometry.Rect {
	if m.Type.Kind() == KindPath && len(m.Points) > 0 {
		return geometry.Bounds(m.Points)
	}
	p, _ := m.Position()
	if end, ok := m.End(); ok {
		return geometry.RectFromCorners(p, end)
	}
	return geometry.Rect{Min: p, Max: p}
}

// EffectiveColor returns the marker color, falling back to the type default.
func (m *Marker) EffectiveColor() string {
	if m.Color != "" {
		return m.Color
	}
	return registry[m.Type].Style.Color
}

// EffectiveOpacity returns the opacity, defaulting to the type style.
func (m *Marker) EffectiveOpacity() float64 {
	if m.Opacity != nil {
		return *m.Opacity
	}
	if o := registry[m.Type].Style.Opacity; o > 0 {
		return o
	}
	return 1
}

// EffectiveLineWidth returns the stroke width in PDF points.
func (m *Marker) EffectiveLineWidth() float64 {
	if m.LineWidth != nil && *m.LineWidth > 0 {
		return *m.LineWidth
	}
	if w := registry[m.Type].Style.LineWidth; w > 0 {
		return w
	}
	return 1
}

// EffectiveFillColor returns the fill color or "" for no fill.
func (m *Marker) EffectiveFillColor() string {
	if m.FillColor != nil {
		return *m.FillColor
	}
	return registry[m.Type].Style.FillColor
}

// EffectiveFontSize returns the label font size in PDF points.
func (m *Marker) EffectiveFontSize() float64 {
	if m.FontSize != nil && *m.FontSize > 0 {
		return *m.FontSize
	}
	if s := registry[m.Type].Style.FontSize; s > 0 {
		return s
	}
	return 12
}

// DisplayLabel returns the label text or "" when unlabeled.
func (m *Marker) DisplayLabel() string {
	if m.Label != nil {
		return *m.Label
	}
	return ""
}

// Translate shifts every coordinate of the marker by d.
func (m *Marker) Translate(d geometry.Point) {
	if p, ok := m.Position(); ok {
		m.SetPosition(p.Add(d))
	}
	if m.EndX != nil && m.EndY != nil {
		m.EndX, m.EndY = Float(*m.EndX+d.X), Float(*m.EndY+d.Y)
	}
	if len(m.Points) > 0 {
		pts := make([]geometry.Point, len(m.Points))
		for i, p := range m.Points {
			pts[i] = p.Add(d)
		}
		m.Points = pts
	}
}

// Clone returns a deep copy of m so pointer fields are not shared.
func (m Marker) Clone() Marker {
	c := m
	c.LayerID = cloneInt(m.LayerID)
	c.ParentID = cloneInt(m.ParentID)
	c.X, c.Y = cloneFloat(m.X), cloneFloat(m.Y)
	c.EndX, c.EndY = cloneFloat(m.EndX), cloneFloat(m.EndY)
	c.Width, c.Height = cloneFloat(m.Width), cloneFloat(m.Height)
	c.Opacity, c.LineWidth, c.FontSize = cloneFloat(m.Opacity), cloneFloat(m.LineWidth), cloneFloat(m.FontSize)
	c.FillColor, c.Label, c.TextContent = cloneString(m.FillColor), cloneString(m.Label), cloneString(m.TextContent)
	c.FontFamily, c.AuthorID, c.AuthorName = cloneString(m.FontFamily), cloneString(m.AuthorID), cloneString(m.AuthorName)
	c.EquipmentType, c.EquipmentID = cloneString(m.EquipmentType), cloneString(m.EquipmentID)
	if m.Points != nil {
		c.Points = append([]geometry.Point(nil), m.Points...)
	}
	return c
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneInt(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
