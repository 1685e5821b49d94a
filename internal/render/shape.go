package render

import (
	"math"

	"github.com/sitewalk/sitewalk/internal/annotation"
	"github.com/sitewalk/sitewalk/internal/geometry"
)

type shapeForm int

const (
	formGlyph shapeForm = iota // fixed-size symbol at a point
	formText                   // text box anchored at its top-left
	formBox                    // axis-aligned box before rotation
	formEllipse                // ellipse inscribed in box
	formLine                   // two endpoints
	formPath                   // vertex list
)

// shape is a marker projected into screen space.
type shape struct {
	form     shapeForm
	anchor   geometry.Point
	end      geometry.Point
	box      geometry.Rect
	pts      []geometry.Point
	closed   bool
	rotation float64
	stroke   float64
}

var boxForms = map[annotation.MarkerType]shapeForm{
	annotation.TypeRectangle: formBox,
	annotation.TypeCloud:     formBox,
	annotation.TypeCallout:   formBox,
	annotation.TypeCircle:    formEllipse,
}

// project maps m into screen space under tr.
func project(m annotation.Marker, tr geometry.Transform) shape {
	info, _ := annotation.Lookup(m.Type)
	sh := shape{
		rotation: m.Rotation,
		stroke:   math.Max(1, m.EffectiveLineWidth()*tr.Factor()),
		closed:   info.Closed,
	}
	pos, _ := m.Position()
	sh.anchor = tr.ToScreen(pos)

	switch info.Kind {
	case annotation.KindPoint:
		sh.form = formGlyph
		sh.box = geometry.Rect{
			Min: sh.anchor.Sub(geometry.Pt(PointRadius, PointRadius)),
			Max: sh.anchor.Add(geometry.Pt(PointRadius, PointRadius)),
		}

	case annotation.KindText:
		sh.form = formText
		size := m.EffectiveFontSize() * tr.Factor()
		text := ""
		if m.TextContent != nil {
			text = *m.TextContent
		}
		w := math.Max(float64(len([]rune(text))), 1) * size * 0.6
		sh.box = geometry.Rect{Min: sh.anchor, Max: sh.anchor.Add(geometry.Pt(w, size*1.2))}

	case annotation.KindShape:
		end, _ := m.End()
		sh.end = tr.ToScreen(end)
		if form, ok := boxForms[m.Type]; ok {
			sh.form = form
		} else {
			sh.form = formLine
		}
		sh.box = geometry.RectFromCorners(sh.anchor, sh.end)

	case annotation.KindPath:
		sh.form = formPath
		sh.pts = make([]geometry.Point, len(m.Points))
		for i, p := range m.Points {
			sh.pts[i] = tr.ToScreen(p)
		}
		sh.box = geometry.Bounds(sh.pts)
	}
	return sh
}

// center is the rotation pivot.
func (sh shape) center() geometry.Point {
	return sh.box.Center()
}

// outline returns the closed polygon approximating box-like forms, already
// rotated. Lines and open paths return their vertices.
func (sh shape) outline() []geometry.Point {
	var pts []geometry.Point
	switch sh.form {
	case formBox, formText, formGlyph:
		b := sh.box
		pts = []geometry.Point{b.Min, geometry.Pt(b.Max.X, b.Min.Y), b.Max, geometry.Pt(b.Min.X, b.Max.Y)}
	case formEllipse:
		c := sh.box.Center()
		rx, ry := sh.box.Width()/2, sh.box.Height()/2
		const n = 48
		pts = make([]geometry.Point, n)
		for i := range pts {
			a := 2 * math.Pi * float64(i) / n
			pts[i] = geometry.Pt(c.X+rx*math.Cos(a), c.Y+ry*math.Sin(a))
		}
	case formLine:
		pts = []geometry.Point{sh.anchor, sh.end}
	case formPath:
		pts = append([]geometry.Point(nil), sh.pts...)
	}
	if sh.rotation == 0 || sh.form == formGlyph {
		return pts
	}
	c := sh.center()
	for i, p := range pts {
		pts[i] = geometry.Rotate(p, c, sh.rotation)
	}
	return pts
}

// arrowHead returns the triangle at the end of a line.
func (sh shape) arrowHead() []geometry.Point {
	d := sh.end.Sub(sh.anchor)
	l := math.Hypot(d.X, d.Y)
	if l == 0 {
		return nil
	}
	u := d.Scale(1 / l)
	n := geometry.Pt(-u.Y, u.X)
	size := math.Max(8, sh.stroke*4)
	base := sh.end.Sub(u.Scale(size))
	return []geometry.Point{sh.end, base.Add(n.Scale(size / 2)), base.Sub(n.Scale(size / 2))}
}

// measureTickSize is the half length of a measurement end tick in pixels.
const measureTickSize = 6

// endTicks returns the perpendicular tick segments at both ends of a line.
func (sh shape) endTicks() [][2]geometry.Point {
	d := sh.end.Sub(sh.anchor)
	l := math.Hypot(d.X, d.Y)
	if l == 0 {
		return nil
	}
	n := geometry.Pt(-d.Y/l, d.X/l).Scale(measureTickSize)
	return [][2]geometry.Point{
		{sh.anchor.Sub(n), sh.anchor.Add(n)},
		{sh.end.Sub(n), sh.end.Add(n)},
	}
}

// cloudBumps returns the arc centers and radius for a revision cloud drawn
// along the box perimeter.
func (sh shape) cloudBumps() ([]geometry.Point, float64) {
	b := sh.box
	r := math.Max(4, math.Min(b.Width(), b.Height())/8)
	var centers []geometry.Point
	edge := func(a, c geometry.Point) {
		l := geometry.Distance(a, c)
		n := int(math.Max(1, math.Round(l/(2*r))))
		for i := 0; i < n; i++ {
			t := (float64(i) + 0.5) / float64(n)
			centers = append(centers, a.Add(c.Sub(a).Scale(t)))
		}
	}
	corners := []geometry.Point{b.Min, geometry.Pt(b.Max.X, b.Min.Y), b.Max, geometry.Pt(b.Min.X, b.Max.Y)}
	for i := range corners {
		edge(corners[i], corners[(i+1)%len(corners)])
	}
	return centers, r
}
