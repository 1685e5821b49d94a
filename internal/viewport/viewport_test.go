package viewport

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sitewalk/sitewalk/internal/geometry"
)

func TestZoom_AnchorInvariance(t *testing.T) {
	const rs = 1.5
	tests := []struct {
		name   string
		start  func(c *Controller)
		factor float64
		pivot  geometry.Point
	}{
		{"zoom in at origin", nil, 2, geometry.Point{}},
		{"zoom in off center", nil, 1.25, geometry.Pt(320, 180)},
		{"zoom out after pan", func(c *Controller) { c.Pan(-140, 75) }, 0.5, geometry.Pt(40, 400)},
		{"clamped at max", func(c *Controller) { c.Zoom(8, geometry.Pt(10, 10)) }, 4, geometry.Pt(250, 90)},
		{"clamped at min", func(c *Controller) { c.Pan(30, 30) }, 0.01, geometry.Pt(600, 20)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(3)
			if tt.start != nil {
				tt.start(c)
			}
			before := c.Transform(rs).ToPDF(tt.pivot)
			c.Zoom(tt.factor, tt.pivot)
			after := c.Transform(rs).ToPDF(tt.pivot)
			if !geometry.ApproxEqual(before, after, 1e-6) {
				t.Errorf("pivot drifted: %v -> %v", before, after)
			}
		})
	}
}

func TestZoom_Clamps(t *testing.T) {
	c := New(1)
	if got := c.Zoom(100, geometry.Point{}).Scale; got != MaxScale {
		t.Errorf("expected max scale, got %v", got)
	}
	if got := c.Zoom(1e-6, geometry.Point{}).Scale; got != MinScale {
		t.Errorf("expected min scale, got %v", got)
	}
	if got := c.Zoom(-2, geometry.Point{}).Scale; got != MinScale {
		t.Errorf("negative factor should be ignored, got %v", got)
	}
}

func TestWheelAndPinch(t *testing.T) {
	c := New(1)
	if got := c.Wheel(-120, geometry.Point{}).Scale; got != WheelStep {
		t.Errorf("expected one wheel step, got %v", got)
	}
	c.ResetView()
	if got := c.Pinch(100, 250, geometry.Pt(50, 50)).Scale; got != 2.5 {
		t.Errorf("expected pinch to 2.5, got %v", got)
	}
}

func TestPan(t *testing.T) {
	c := New(1)
	c.Pan(10, -5)
	st := c.Pan(2, 2)
	if st.Translation != geometry.Pt(12, -3) {
		t.Errorf("unexpected translation %v", st.Translation)
	}
}

func TestResetView_Idempotent(t *testing.T) {
	c := New(4)
	c.Zoom(3, geometry.Pt(100, 100))
	c.Pan(40, 40)
	c.ChangePage(2)

	once := c.ResetView()
	twice := c.ResetView()
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("reset not idempotent:\n%s", diff)
	}
	want := State{Scale: 1, Page: 2, PageCount: 4}
	if diff := cmp.Diff(want, twice); diff != "" {
		t.Errorf("unexpected reset state (-want +got):\n%s", diff)
	}
}

func TestChangePage_ClampsAndSequences(t *testing.T) {
	c := New(3)

	var mu sync.Mutex
	var reqs []RenderRequest
	c.OnRenderRequest(func(r RenderRequest) {
		mu.Lock()
		reqs = append(reqs, r)
		mu.Unlock()
	})

	st, first := c.ChangePage(9)
	if st.Page != 3 {
		t.Errorf("expected clamp to 3, got %d", st.Page)
	}
	st, second := c.ChangePage(-1)
	if st.Page != 1 {
		t.Errorf("expected clamp to 1, got %d", st.Page)
	}
	if second.Seq <= first.Seq {
		t.Errorf("sequence must increase: %d then %d", first.Seq, second.Seq)
	}
	if c.IsCurrent(first) || !c.IsCurrent(second) {
		t.Error("only the latest request should be current")
	}
	if len(reqs) != 2 {
		t.Errorf("expected 2 render requests, got %d", len(reqs))
	}
}

func TestSubscribe(t *testing.T) {
	c := New(2)
	var got []State
	unsub := c.Subscribe(func(s State) { got = append(got, s) })

	c.Pan(1, 1)
	c.ResetView()
	c.ResetView() // no change, no notification
	unsub()
	c.Pan(5, 5)

	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}
	if got[1].Translation != (geometry.Point{}) {
		t.Errorf("expected reset state, got %+v", got[1])
	}
}

func TestSetPageCount(t *testing.T) {
	c := New(5)
	c.ChangePage(5)
	if st := c.SetPageCount(2); st.Page != 2 || st.PageCount != 2 {
		t.Errorf("expected page pulled into range, got %+v", st)
	}
}
