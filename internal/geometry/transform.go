// Package geometry converts between the three coordinate spaces of a
// floorplan view:
//
//   - PDF space: page points (1/72 inch), origin top-left, independent of
//     zoom and pan. Markers are always stored in PDF space.
//   - viewport space: PDF space multiplied by the render scale the page
//     rasterizer chose.
//   - screen space: viewport space multiplied by the user's zoom and shifted
//     by the pan translation.
//
// All functions are pure.
package geometry

import (
	"math"

	"seehuhn.de/go/geom/vec"
)

// Point is a 2D coordinate. The space it lives in is implied by context.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point { return Point{X: x, Y: y} }

// Add returns p+q.
func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// Sub returns p-q.
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Scale returns p*k.
func (p Point) Scale(k float64) Point { return Point{X: p.X * k, Y: p.Y * k} }

// Vec converts p to the geom vector type used for length computations.
func (p Point) Vec() vec.Vec2 { return vec.Vec2{X: p.X, Y: p.Y} }

// Distance is the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return b.Vec().Sub(a.Vec()).Length()
}

// ApproxEqual reports whether p and q agree within eps on both axes.
func ApproxEqual(p, q Point, eps float64) bool {
	return math.Abs(p.X-q.X) <= eps && math.Abs(p.Y-q.Y) <= eps
}

// Transform bundles the parameters that map PDF space to screen space.
type Transform struct {
	RenderScale float64 `json:"render_scale"`
	Zoom        float64 `json:"zoom"`
	Translation Point   `json:"translation"`
}

// Identity maps PDF points 1:1 onto screen pixels.
var Identity = Transform{RenderScale: 1, Zoom: 1}

// Factor is the combined PDF-point to screen-pixel multiplier.
func (t Transform) Factor() float64 { return t.RenderScale * t.Zoom }

// ToScreen maps a PDF point to screen space.
func (t Transform) ToScreen(p Point) Point {
	return PDFToScreen(p, t.RenderScale, t.Zoom, t.Translation)
}

// ToPDF maps a screen point to PDF space.
func (t Transform) ToPDF(p Point) Point {
	return ScreenToPDF(p, t.RenderScale, t.Zoom, t.Translation)
}

// LengthToPDF converts a screen-space length (pixels) to PDF points.
func (t Transform) LengthToPDF(px float64) float64 {
	return ScreenLengthToPDF(px, t.RenderScale, t.Zoom)
}

// PDFToScreen computes screen = p * renderScale * zoom + translation.
func PDFToScreen(p Point, renderScale, zoom float64, translation Point) Point {
	f := renderScale * zoom
	return Point{
		X: p.X*f + translation.X,
		Y: p.Y*f + translation.Y,
	}
}

// ScreenToPDF is the inverse of PDFToScreen:
// pdf = (screen - translation) / (renderScale * zoom).
// A degenerate (zero) factor maps everything to the origin.
func ScreenToPDF(p Point, renderScale, zoom float64, translation Point) Point {
	f := renderScale * zoom
	if f == 0 {
		return Point{}
	}
	return Point{
		X: (p.X - translation.X) / f,
		Y: (p.Y - translation.Y) / f,
	}
}

// ScreenLengthToPDF converts a distance in screen pixels into PDF points.
func ScreenLengthToPDF(px, renderScale, zoom float64) float64 {
	f := renderScale * zoom
	if f == 0 {
		return 0
	}
	return px / f
}

// ComputeRenderScale returns the factor a renderer applied to draw a page of
// nativePageWidth points into targetViewportWidth pixels. Renderers rarely
// use 1 point = 1 pixel, so every pointer mapping needs this value.
func ComputeRenderScale(nativePageWidth, targetViewportWidth float64) float64 {
	if nativePageWidth <= 0 || targetViewportWidth <= 0 {
		return 0
	}
	return targetViewportWidth / nativePageWidth
}
