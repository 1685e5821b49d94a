package geometry

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRectFromCorners(t *testing.T) {
	r := RectFromCorners(Pt(50, 40), Pt(10, 10))
	want := Rect{Min: Pt(10, 10), Max: Pt(50, 40)}
	if diff := cmp.Diff(want, r); diff != "" {
		t.Errorf("RectFromCorners mismatch:\n%s", diff)
	}
	if r.Width() != 40 || r.Height() != 30 {
		t.Errorf("expected 40x30, got %vx%v", r.Width(), r.Height())
	}
	if !r.Contains(Pt(10, 40)) {
		t.Error("expected corner to be contained")
	}
}

func TestBounds(t *testing.T) {
	got := Bounds([]Point{Pt(3, 9), Pt(-1, 4), Pt(7, 2)})
	want := Rect{Min: Pt(-1, 2), Max: Pt(7, 9)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Bounds mismatch:\n%s", diff)
	}
	if Bounds(nil) != (Rect{}) {
		t.Error("expected zero rect for no points")
	}
}

func TestPolygonContains(t *testing.T) {
	square := []Point{Pt(0, 0), Pt(10, 0), Pt(10, 10), Pt(0, 10)}
	if !PolygonContains(square, Pt(5, 5)) {
		t.Error("center should be inside")
	}
	if PolygonContains(square, Pt(15, 5)) {
		t.Error("outside point reported inside")
	}
	// Concave L shape: the notch is outside.
	l := []Point{Pt(0, 0), Pt(10, 0), Pt(10, 4), Pt(4, 4), Pt(4, 10), Pt(0, 10)}
	if PolygonContains(l, Pt(8, 8)) {
		t.Error("notch of L should be outside")
	}
}

func TestPolygonArea(t *testing.T) {
	if got := PolygonArea([]Point{Pt(0, 0), Pt(10, 0), Pt(10, 10), Pt(0, 10)}); got != 100 {
		t.Errorf("expected 100, got %v", got)
	}
	if got := PolygonArea([]Point{Pt(0, 0), Pt(1, 1)}); got != 0 {
		t.Errorf("expected 0 for degenerate polygon, got %v", got)
	}
}

func TestSegmentDistance(t *testing.T) {
	a, b := Pt(0, 0), Pt(10, 0)
	if got := SegmentDistance(Pt(5, 3), a, b); math.Abs(got-3) > 1e-9 {
		t.Errorf("expected 3, got %v", got)
	}
	if got := SegmentDistance(Pt(13, 4), a, b); math.Abs(got-5) > 1e-9 {
		t.Errorf("expected 5 past the end, got %v", got)
	}
	if got := SegmentDistance(Pt(3, 4), a, a); math.Abs(got-5) > 1e-9 {
		t.Errorf("expected 5 for zero-length segment, got %v", got)
	}
}

func TestRotate(t *testing.T) {
	got := Rotate(Pt(10, 0), Point{}, 90)
	if !ApproxEqual(got, Pt(0, 10), 1e-9) {
		t.Errorf("expected (0,10), got %v", got)
	}
}

func TestPathLength(t *testing.T) {
	if got := PathLength([]Point{Pt(0, 0), Pt(3, 4), Pt(3, 10)}); math.Abs(got-11) > 1e-9 {
		t.Errorf("expected 11, got %v", got)
	}
}
