// Package render draws the marker overlay of a floorplan page and resolves
// pointer positions back to markers. Output is an SVG document for the live
// viewer and an RGBA raster for exports.
package render

import (
	"sort"

	"github.com/sitewalk/sitewalk/internal/annotation"
	"github.com/sitewalk/sitewalk/internal/calibration"
	"github.com/sitewalk/sitewalk/internal/geometry"
)

// PointRadius is the on-screen radius of point markers in pixels. Point
// markers keep a fixed screen size regardless of zoom.
const PointRadius = 10.0

// HitTolerance is the extra screen distance in pixels accepted around
// strokes when hit-testing.
const HitTolerance = 6.0

// Scene is everything needed to draw one page of overlay.
type Scene struct {
	Markers       []annotation.Marker
	Layers        []annotation.Layer
	Page          int
	Transform     geometry.Transform
	SelectedID    int64
	ShowAllLabels bool

	// Calibration, when set, turns measurement and area labels into
	// real-world values.
	Calibration *calibration.Calibration

	// Temp is the drawing in progress, drawn dashed and never hit.
	Temp *annotation.Marker
}

// Visible returns the markers of the scene's page whose layer is visible or
// who have no layer, in draw order: unlayered markers first, then by layer
// sort order, keeping list order within a layer.
func Visible(s Scene) []annotation.Marker {
	layers := make(map[int64]annotation.Layer, len(s.Layers))
	for _, l := range s.Layers {
		layers[l.ID] = l
	}

	out := make([]annotation.Marker, 0, len(s.Markers))
	for _, m := range s.Markers {
		if m.Page != s.Page {
			continue
		}
		if m.LayerID != nil {
			l, ok := layers[*m.LayerID]
			// Unknown layers are treated like deleted ones: the marker stays.
			if ok && !l.Visible {
				continue
			}
		}
		out = append(out, m)
	}

	order := func(m annotation.Marker) int {
		if m.LayerID == nil {
			return -1 << 31
		}
		if l, ok := layers[*m.LayerID]; ok {
			return l.SortOrder
		}
		return -1 << 31
	}
	sort.SliceStable(out, func(i, j int) bool { return order(out[i]) < order(out[j]) })
	return out
}

// showLabel applies the label rule: selected markers and the global toggle.
func (s Scene) showLabel(m annotation.Marker) bool {
	return s.ShowAllLabels || (s.SelectedID != 0 && m.ID == s.SelectedID)
}

// labelText returns the label to draw for m, deriving measurement values
// from the calibration when the marker has no explicit label.
func (s Scene) labelText(m annotation.Marker) string {
	if l := m.DisplayLabel(); l != "" {
		return l
	}
	if s.Calibration == nil {
		return ""
	}
	switch m.Type {
	case annotation.TypeMeasurement:
		start, _ := m.Position()
		if end, ok := m.End(); ok {
			if v, err := calibration.Measure(start, end, *s.Calibration); err == nil {
				return v.String()
			}
		}
	case annotation.TypeArea:
		if v, err := calibration.MeasureArea(m.Points, *s.Calibration); err == nil {
			return v.String()
		}
	}
	return ""
}
