// Package viewport owns the pan/zoom/page state of one floorplan view and
// turns input gestures into state changes and page render requests.
package viewport

import (
	"math"
	"sync"

	"github.com/sitewalk/sitewalk/internal/geometry"
)

// Zoom limits.
const (
	MinScale = 0.1
	MaxScale = 10.0

	// WheelStep is the zoom factor applied per wheel notch.
	WheelStep = 1.1
)

// State is the full description of what the view shows. It is a value: the
// controller hands out copies.
type State struct {
	Scale       float64        `json:"scale"`
	Translation geometry.Point `json:"translation"`
	Page        int            `json:"page"`
	PageCount   int            `json:"page_count"`
}

// Transform returns the screen mapping for this state at a render scale.
func (s State) Transform(renderScale float64) geometry.Transform {
	return geometry.Transform{RenderScale: renderScale, Zoom: s.Scale, Translation: s.Translation}
}

// RenderRequest asks for a page raster. Seq increases with every request so
// a consumer can drop results for anything but the newest one.
type RenderRequest struct {
	Page int    `json:"page"`
	Seq  uint64 `json:"seq"`
}

// Controller serializes state changes for a single view and notifies
// subscribers after each one.
type Controller struct {
	mu      sync.Mutex
	state   State
	seq     uint64
	nextID  int
	subs    map[int]func(State)
	renders map[int]func(RenderRequest)
}

// New creates a controller showing page 1 of a document with pageCount pages
// at scale 1.
func New(pageCount int) *Controller {
	if pageCount < 1 {
		pageCount = 1
	}
	return &Controller{
		state:   State{Scale: 1, Page: 1, PageCount: pageCount},
		subs:    make(map[int]func(State)),
		renders: make(map[int]func(RenderRequest)),
	}
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transform returns the current screen mapping at a render scale.
func (c *Controller) Transform(renderScale float64) geometry.Transform {
	return c.State().Transform(renderScale)
}

// Subscribe registers fn to receive every new state. The returned func
// removes the subscription.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// OnRenderRequest registers fn to receive page render requests.
func (c *Controller) OnRenderRequest(fn func(RenderRequest)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.renders[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.renders, id)
		c.mu.Unlock()
	}
}

// Zoom multiplies the scale by factor, clamped to [MinScale, MaxScale],
// keeping the PDF point under pivot (screen space) fixed on screen.
func (c *Controller) Zoom(factor float64, pivot geometry.Point) State {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return c.State()
	}
	return c.update(func(s *State) bool {
		next := clamp(s.Scale*factor, MinScale, MaxScale)
		if next == s.Scale {
			return false
		}
		effective := next / s.Scale
		// pivot = p*rs*scale + t must hold before and after.
		s.Translation = pivot.Sub(pivot.Sub(s.Translation).Scale(effective))
		s.Scale = next
		return true
	})
}

// Wheel zooms one step per notch around pivot. Negative delta zooms in.
func (c *Controller) Wheel(deltaY float64, pivot geometry.Point) State {
	switch {
	case deltaY < 0:
		return c.Zoom(WheelStep, pivot)
	case deltaY > 0:
		return c.Zoom(1/WheelStep, pivot)
	}
	return c.State()
}

// Pinch zooms by the ratio of finger distances around their midpoint.
func (c *Controller) Pinch(prevDistance, distance float64, center geometry.Point) State {
	if prevDistance <= 0 {
		return c.State()
	}
	return c.Zoom(distance/prevDistance, center)
}

// Pan shifts the view by a screen-space delta. The canvas is unbounded.
func (c *Controller) Pan(dx, dy float64) State {
	if dx == 0 && dy == 0 {
		return c.State()
	}
	return c.update(func(s *State) bool {
		s.Translation = s.Translation.Add(geometry.Pt(dx, dy))
		return true
	})
}

// ResetView restores scale 1 and no translation.
func (c *Controller) ResetView() State {
	return c.update(func(s *State) bool {
		if s.Scale == 1 && s.Translation == (geometry.Point{}) {
			return false
		}
		s.Scale = 1
		s.Translation = geometry.Point{}
		return true
	})
}

// SetPageCount updates the page count, pulling the current page back into
// range if needed.
func (c *Controller) SetPageCount(n int) State {
	if n < 1 {
		n = 1
	}
	return c.update(func(s *State) bool {
		if s.PageCount == n {
			return false
		}
		s.PageCount = n
		if s.Page > n {
			s.Page = n
		}
		return true
	})
}

// ChangePage moves to page n clamped to [1, PageCount] and issues a render
// request for it, even when the page is unchanged, so a caller can force a
// reload.
func (c *Controller) ChangePage(n int) (State, RenderRequest) {
	c.mu.Lock()
	if n < 1 {
		n = 1
	}
	if n > c.state.PageCount {
		n = c.state.PageCount
	}
	changed := c.state.Page != n
	c.state.Page = n
	c.seq++
	req := RenderRequest{Page: n, Seq: c.seq}
	st := c.state
	subs := c.snapshotSubs()
	renders := make([]func(RenderRequest), 0, len(c.renders))
	for _, fn := range c.renders {
		renders = append(renders, fn)
	}
	c.mu.Unlock()

	if changed {
		for _, fn := range subs {
			fn(st)
		}
	}
	for _, fn := range renders {
		fn(req)
	}
	return st, req
}

// IsCurrent reports whether req is the newest render request issued.
func (c *Controller) IsCurrent(req RenderRequest) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return req.Seq == c.seq
}

func (c *Controller) update(mutate func(*State) bool) State {
	c.mu.Lock()
	if !mutate(&c.state) {
		st := c.state
		c.mu.Unlock()
		return st
	}
	st := c.state
	subs := c.snapshotSubs()
	c.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
	return st
}

func (c *Controller) snapshotSubs() []func(State) {
	out := make([]func(State), 0, len(c.subs))
	for _, fn := range c.subs {
		out = append(out, fn)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
