package render

import (
	"math"

	"github.com/sitewalk/sitewalk/internal/annotation"
	"github.com/sitewalk/sitewalk/internal/geometry"
)

// HitTest returns the topmost visible marker whose screen geometry contains
// the screen point. Markers on hidden layers or other pages never match.
func HitTest(s Scene, screen geometry.Point) (*annotation.Marker, bool) {
	visible := Visible(s)
	for i := len(visible) - 1; i >= 0; i-- {
		m := visible[i]
		if contains(project(m, s.Transform), screen) {
			return &m, true
		}
	}
	return nil, false
}

// HitTestFunc binds HitTest to a scene source so it can be handed to the
// drawing machine.
func HitTestFunc(scene func() Scene) func(geometry.Point) (*annotation.Marker, bool) {
	return func(p geometry.Point) (*annotation.Marker, bool) {
		return HitTest(scene(), p)
	}
}

func contains(sh shape, p geometry.Point) bool {
	tol := math.Max(HitTolerance, sh.stroke/2)

	// Undo the shape rotation instead of rotating the shape.
	if sh.rotation != 0 && sh.form != formGlyph {
		p = geometry.Rotate(p, sh.center(), -sh.rotation)
	}

	switch sh.form {
	case formGlyph:
		return geometry.Distance(p, sh.anchor) <= PointRadius
	case formText, formBox:
		return sh.box.Expand(tol).Contains(p)
	case formEllipse:
		c := sh.box.Center()
		rx, ry := sh.box.Width()/2+tol, sh.box.Height()/2+tol
		dx, dy := (p.X-c.X)/rx, (p.Y-c.Y)/ry
		return dx*dx+dy*dy <= 1
	case formLine:
		return geometry.SegmentDistance(p, sh.anchor, sh.end) <= tol
	case formPath:
		if sh.closed && len(sh.pts) >= 3 && geometry.PolygonContains(sh.pts, p) {
			return true
		}
		n := len(sh.pts)
		for i := 0; i+1 < n; i++ {
			if geometry.SegmentDistance(p, sh.pts[i], sh.pts[i+1]) <= tol {
				return true
			}
		}
		if sh.closed && n >= 3 && geometry.SegmentDistance(p, sh.pts[n-1], sh.pts[0]) <= tol {
			return true
		}
	}
	return false
}
