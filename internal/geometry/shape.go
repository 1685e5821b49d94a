package geometry

import "math"

// Rect is an axis-aligned rectangle with a non-negative size.
type Rect struct {
	Min Point `json:"min"`
	Max Point `json:"max"`
}

// RectFromCorners normalizes two arbitrary corners into a Rect.
func RectFromCorners(a, b Point) Rect {
	return Rect{
		Min: Point{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y)},
		Max: Point{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y)},
	}
}

// Width of the rectangle.
func (r Rect) Width() float64 { return r.Max.X - r.Min.X }

// Height of the rectangle.
func (r Rect) Height() float64 { return r.Max.Y - r.Min.Y }

// Center of the rectangle.
func (r Rect) Center() Point {
	return Point{X: (r.Min.X + r.Max.X) / 2, Y: (r.Min.Y + r.Max.Y) / 2}
}

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

// Expand grows (d > 0) or shrinks (d < 0) r on every side.
func (r Rect) Expand(d float64) Rect {
	return Rect{
		Min: Point{X: r.Min.X - d, Y: r.Min.Y - d},
		Max: Point{X: r.Max.X + d, Y: r.Max.Y + d},
	}
}

// Bounds returns the bounding box of pts. The zero Rect is returned for an
// empty slice.
func Bounds(pts []Point) Rect {
	if len(pts) == 0 {
		return Rect{}
	}
	r := Rect{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		r.Min.X = math.Min(r.Min.X, p.X)
		r.Min.Y = math.Min(r.Min.Y, p.Y)
		r.Max.X = math.Max(r.Max.X, p.X)
		r.Max.Y = math.Max(r.Max.Y, p.Y)
	}
	return r
}

// SegmentDistance is the shortest distance from p to the segment a-b.
func SegmentDistance(p, a, b Point) float64 {
	ab := b.Vec().Sub(a.Vec())
	l2 := ab.X*ab.X + ab.Y*ab.Y
	if l2 == 0 {
		return Distance(p, a)
	}
	t := ((p.X-a.X)*ab.X + (p.Y-a.Y)*ab.Y) / l2
	t = math.Max(0, math.Min(1, t))
	proj := Point{X: a.X + t*ab.X, Y: a.Y + t*ab.Y}
	return Distance(p, proj)
}

// PolygonContains reports whether p is inside the closed polygon pts using
// the even-odd rule.
func PolygonContains(pts []Point, p Point) bool {
	inside := false
	for i, j := 0, len(pts)-1; i < len(pts); j, i = i, i+1 {
		a, b := pts[i], pts[j]
		if (a.Y > p.Y) != (b.Y > p.Y) &&
			p.X < (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y)+a.X {
			inside = !inside
		}
	}
	return inside
}

// PolygonArea is the absolute shoelace area of the closed polygon pts.
func PolygonArea(pts []Point) float64 {
	if len(pts) < 3 {
		return 0
	}
	var sum float64
	for i := range pts {
		j := (i + 1) % len(pts)
		sum += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return math.Abs(sum) / 2
}

// PathLength sums the segment lengths of the open path pts.
func PathLength(pts []Point) float64 {
	var total float64
	for i := 1; i < len(pts); i++ {
		total += Distance(pts[i-1], pts[i])
	}
	return total
}

// Rotate turns p around center by deg degrees (clockwise in a y-down space).
func Rotate(p, center Point, deg float64) Point {
	if deg == 0 {
		return p
	}
	rad := deg * math.Pi / 180
	sin, cos := math.Sincos(rad)
	d := p.Sub(center)
	return Point{
		X: center.X + d.X*cos - d.Y*sin,
		Y: center.Y + d.X*sin + d.Y*cos,
	}
}
