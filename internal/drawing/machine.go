package drawing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/sitewalk/sitewalk/internal/annotation"
	"github.com/sitewalk/sitewalk/internal/geometry"
	"github.com/sitewalk/sitewalk/internal/viewport"
)

// Screen-space distances in pixels.
const (
	DefaultThreshold = 5.0
)

// DuplicateOffset is the PDF-space shift applied to a Ctrl/Cmd+D copy.
var DuplicateOffset = geometry.Pt(20, 20)

// ErrNothingPending is returned by Retry when no failed commit is waiting.
var ErrNothingPending = errors.New("no pending marker to retry")

// ErrUnknownTool is returned by SetTool for names outside the dispatch table.
var ErrUnknownTool = errors.New("unknown tool")

// Committer persists marker mutations. The REST client implements it.
type Committer interface {
	CreateMarker(ctx context.Context, floorplanID string, m annotation.Marker) (*annotation.Marker, error)
	UpdateMarker(ctx context.Context, floorplanID string, id int64, m annotation.Marker) (*annotation.Marker, error)
	DeleteMarker(ctx context.Context, floorplanID string, id int64) error
	DuplicateMarker(ctx context.Context, floorplanID string, m annotation.Marker) (*annotation.Marker, error)
}

// HitTestFunc resolves a screen point to the topmost marker under it.
type HitTestFunc func(screen geometry.Point) (*annotation.Marker, bool)

// EventKind classifies a machine notification.
type EventKind string

const (
	EventCreated    EventKind = "created"
	EventUpdated    EventKind = "updated"
	EventDeleted    EventKind = "deleted"
	EventDuplicated EventKind = "duplicated"
	EventSelected   EventKind = "selected"
)

// Event reports a completed mutation or a selection change. Marker is nil
// when the selection is cleared.
type Event struct {
	Kind   EventKind
	Marker *annotation.Marker
}

// Author is stamped onto committed markers.
type Author struct {
	ID   string
	Name string
}

// Options configure a Machine.
type Options struct {
	FloorplanID string
	Viewport    *viewport.Controller
	Committer   Committer
	HitTest     HitTestFunc
	RenderScale float64
	Threshold   float64
	OnEvent     func(Event)
}

// Machine holds the transient authoring state of one view. Network calls
// run without the lock held so input keeps flowing while a save is pending.
type Machine struct {
	mu sync.Mutex

	floorplanID string
	vp          *viewport.Controller
	committer   Committer
	hitTest     HitTestFunc
	onEvent     func(Event)
	renderScale float64
	threshold   float64

	tool      Tool
	handler   handler
	toolType  annotation.MarkerType
	state     State
	layer     *annotation.Layer
	author    *Author
	defaults  annotation.Marker
	temp      *annotation.Marker
	points    []geometry.Point
	preview   *geometry.Point
	pending   *annotation.Marker
	selected  *annotation.Marker
	panFrom   *geometry.Point
	dragFrom  *geometry.Point
	dragDelta geometry.Point
}

// New creates a machine with the select tool active.
func New(opts Options) *Machine {
	if opts.RenderScale <= 0 {
		opts.RenderScale = 1
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.OnEvent == nil {
		opts.OnEvent = func(Event) {}
	}
	return &Machine{
		floorplanID: opts.FloorplanID,
		vp:          opts.Viewport,
		committer:   opts.Committer,
		hitTest:     opts.HitTest,
		onEvent:     opts.OnEvent,
		renderScale: opts.RenderScale,
		threshold:   opts.Threshold,
		tool:        ToolSelect,
		handler:     handleSelect,
		state:       StateIdle,
	}
}

// State returns the current phase.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Tool returns the active tool.
func (m *Machine) Tool() Tool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tool
}

// Layer returns a copy of the layer new markers are placed on, if any.
func (m *Machine) Layer() *annotation.Layer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.layer == nil {
		return nil
	}
	l := *m.layer
	return &l
}

// Temp returns a copy of the in-progress marker, if any.
func (m *Machine) Temp() *annotation.Marker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.temp == nil {
		return nil
	}
	c := m.temp.Clone()
	if m.state == StatePathing {
		c.Points = append([]geometry.Point(nil), m.points...)
		if m.preview != nil {
			c.Points = append(c.Points, *m.preview)
		}
	}
	return &c
}

// Selected returns a copy of the selected marker, if any.
func (m *Machine) Selected() *annotation.Marker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.selected == nil {
		return nil
	}
	c := m.selected.Clone()
	return &c
}

// Pending returns the marker whose commit failed, if any.
func (m *Machine) Pending() *annotation.Marker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return nil
	}
	c := m.pending.Clone()
	return &c
}

// SetTool activates a tool. Any drawing in progress and any failed commit
// are discarded.
func (m *Machine) SetTool(t Tool) error {
	h, typ, ok := dispatch(t)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTool, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	m.pending = nil
	m.tool, m.handler, m.toolType = t, h, typ
	return nil
}

// SetLayer sets the layer new markers are placed on. Its color is used for
// markers without an explicit one.
func (m *Machine) SetLayer(l *annotation.Layer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.layer = l
}

// SetAuthor sets the author stamped on new markers and edits.
func (m *Machine) SetAuthor(a *Author) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.author = a
}

// SetDefaults sets style and content fields copied into every new marker,
// e.g. the text for the text tool or an equipment link.
func (m *Machine) SetDefaults(d annotation.Marker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaults = d.Clone()
}

// SetRenderScale updates the page render scale after a new raster.
func (m *Machine) SetRenderScale(rs float64) {
	if rs <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.renderScale = rs
}

// SetFloorplan points the machine at another floorplan, dropping all
// transient state.
func (m *Machine) SetFloorplan(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.floorplanID = id
	m.resetLocked()
	m.pending = nil
	m.selected = nil
}

// Cancel discards any drawing in progress without side effects.
func (m *Machine) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

// Select replaces the selection. Passing nil clears it.
func (m *Machine) Select(mk *annotation.Marker) {
	m.mu.Lock()
	m.setSelectedLocked(mk)
	m.mu.Unlock()
	m.emit(Event{Kind: EventSelected, Marker: mk})
}

func (m *Machine) setSelectedLocked(mk *annotation.Marker) {
	if mk == nil {
		m.selected = nil
		return
	}
	c := mk.Clone()
	m.selected = &c
}

// PointerDown handles a press at a screen position.
func (m *Machine) PointerDown(ctx context.Context, screen geometry.Point) error {
	m.mu.Lock()
	tr := m.transformLocked()
	p := tr.ToPDF(screen)

	switch m.handler {
	case handlePan:
		m.panFrom = &screen
		m.mu.Unlock()
		return nil

	case handleSelect:
		m.mu.Unlock()
		var hit *annotation.Marker
		if m.hitTest != nil {
			if mk, ok := m.hitTest(screen); ok {
				hit = mk
			}
		}
		m.mu.Lock()
		m.setSelectedLocked(hit)
		if hit != nil {
			m.dragFrom = &p
			m.dragDelta = geometry.Point{}
		}
		m.mu.Unlock()
		m.emit(Event{Kind: EventSelected, Marker: hit})
		return nil

	case handlePoint:
		mk := m.newMarkerLocked()
		mk.SetPosition(p)
		m.state = StatePlaced
		m.mu.Unlock()
		err := m.commit(ctx, mk)
		m.mu.Lock()
		if m.state == StatePlaced {
			m.state = StateIdle
		}
		m.mu.Unlock()
		return err

	case handleSizing:
		mk := m.newMarkerLocked()
		mk.SetPosition(p)
		m.temp = &mk
		m.state = StateSizing
		m.mu.Unlock()
		return nil

	case handlePath:
		if m.state != StatePathing {
			mk := m.newMarkerLocked()
			m.temp = &mk
			m.points = []geometry.Point{p}
			m.preview = nil
			m.state = StatePathing
			m.mu.Unlock()
			return nil
		}
		m.appendPointLocked(p, tr)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	return nil
}

// PointerMove handles pointer motion at a screen position.
func (m *Machine) PointerMove(_ context.Context, screen geometry.Point) error {
	m.mu.Lock()
	tr := m.transformLocked()
	p := tr.ToPDF(screen)

	switch {
	case m.handler == handlePan && m.panFrom != nil:
		d := screen.Sub(*m.panFrom)
		m.panFrom = &screen
		m.mu.Unlock()
		m.vp.Pan(d.X, d.Y)
		return nil

	case m.handler == handleSelect && m.dragFrom != nil:
		m.dragDelta = p.Sub(*m.dragFrom)

	case m.state == StateSizing:
		m.resizeLocked(p)

	case m.state == StatePathing:
		last := m.points[len(m.points)-1]
		if m.preview != nil {
			last = *m.preview
		}
		if geometry.Distance(last, p) > tr.LengthToPDF(m.threshold) {
			m.preview = &p
		}
	}
	m.mu.Unlock()
	return nil
}

// PointerUp handles a release at a screen position.
func (m *Machine) PointerUp(ctx context.Context, screen geometry.Point) error {
	m.mu.Lock()
	tr := m.transformLocked()
	p := tr.ToPDF(screen)

	switch {
	case m.handler == handlePan:
		m.panFrom = nil
		m.mu.Unlock()
		return nil

	case m.handler == handleSelect && m.dragFrom != nil:
		m.dragDelta = p.Sub(*m.dragFrom)
		delta := m.dragDelta
		m.dragFrom = nil
		m.dragDelta = geometry.Point{}
		sel := m.selected
		minMove := tr.LengthToPDF(m.threshold)
		m.mu.Unlock()
		if sel == nil || math.Hypot(delta.X, delta.Y) <= minMove {
			return nil
		}
		return m.move(ctx, *sel, delta)

	case m.state == StateSizing:
		m.resizeLocked(p)
		mk := normalizeShape(*m.temp)
		thr := tr.LengthToPDF(m.threshold)
		m.temp = nil
		m.state = StateIdle
		m.mu.Unlock()
		if !exceeds(mk, thr) {
			return nil
		}
		return m.commit(ctx, mk)
	}
	m.mu.Unlock()
	return nil
}

// DoubleClick finalizes a path. The click point is appended under the usual
// threshold rule; fewer than two points discards the path.
func (m *Machine) DoubleClick(ctx context.Context, screen geometry.Point) error {
	m.mu.Lock()
	if m.state != StatePathing {
		m.mu.Unlock()
		return nil
	}
	tr := m.transformLocked()
	m.appendPointLocked(tr.ToPDF(screen), tr)

	mk := *m.temp
	mk.Points = append([]geometry.Point(nil), m.points...)
	m.resetLocked()
	m.mu.Unlock()

	if len(mk.Points) < 2 {
		return nil
	}
	return m.commit(ctx, mk)
}

// Key is a keyboard event. Mod is Ctrl on most platforms and Cmd on macOS.
type Key struct {
	Name string
	Mod  bool
}

// KeyDown applies a keyboard shortcut. It reports whether the key was
// handled.
func (m *Machine) KeyDown(ctx context.Context, k Key) (bool, error) {
	name := strings.ToLower(k.Name)
	switch {
	case k.Mod && name == "0":
		m.vp.ResetView()
		return true, nil

	case name == "escape":
		m.mu.Lock()
		m.resetLocked()
		had := m.selected != nil
		m.selected = nil
		m.mu.Unlock()
		if had {
			m.emit(Event{Kind: EventSelected})
		}
		return true, nil

	case !k.Mod && (name == "delete" || name == "backspace"):
		sel := m.Selected()
		if sel == nil {
			return false, nil
		}
		return true, m.deleteSelected(ctx, *sel)

	case k.Mod && name == "d":
		sel := m.Selected()
		if sel == nil {
			return false, nil
		}
		return true, m.duplicate(ctx, *sel)
	}
	return false, nil
}

// Retry resubmits the marker whose last commit failed.
func (m *Machine) Retry(ctx context.Context) error {
	m.mu.Lock()
	if m.pending == nil {
		m.mu.Unlock()
		return ErrNothingPending
	}
	mk := m.pending.Clone()
	m.mu.Unlock()
	return m.send(ctx, mk)
}

// commit stamps identity and layer defaults, validates, and creates.
func (m *Machine) commit(ctx context.Context, mk annotation.Marker) error {
	m.mu.Lock()
	mk.FloorplanID = m.floorplanID
	mk.UniqueID = annotation.NewUniqueID()
	mk.Version = 1
	mk.ParentID = nil
	mk.ID = 0
	if m.layer != nil {
		id := m.layer.ID
		mk.LayerID = &id
		if mk.Color == "" {
			mk.Color = m.layer.Color
		}
	}
	if m.author != nil {
		mk.AuthorID = annotation.String(m.author.ID)
		mk.AuthorName = annotation.String(m.author.Name)
	}
	st := m.vp.State()
	m.mu.Unlock()

	mk.Page = st.Page
	if err := annotation.Validate(mk, st.PageCount); err != nil {
		return err
	}
	return m.send(ctx, mk)
}

func (m *Machine) send(ctx context.Context, mk annotation.Marker) error {
	created, err := m.committer.CreateMarker(ctx, mk.FloorplanID, mk)
	if err != nil {
		m.mu.Lock()
		m.pending = &mk
		m.mu.Unlock()
		return fmt.Errorf("committing %s marker: %w", mk.Type, err)
	}
	m.mu.Lock()
	m.pending = nil
	m.mu.Unlock()
	m.emit(Event{Kind: EventCreated, Marker: created})
	return nil
}

func (m *Machine) move(ctx context.Context, sel annotation.Marker, delta geometry.Point) error {
	moved := sel.Clone()
	moved.Translate(delta)
	st := m.vp.State()
	if err := annotation.Validate(moved, st.PageCount); err != nil {
		return err
	}
	updated, err := m.committer.UpdateMarker(ctx, sel.FloorplanID, sel.ID, moved)
	if err != nil {
		return fmt.Errorf("moving marker %d: %w", sel.ID, err)
	}
	m.mu.Lock()
	m.setSelectedLocked(updated)
	m.mu.Unlock()
	m.emit(Event{Kind: EventUpdated, Marker: updated})
	return nil
}

func (m *Machine) deleteSelected(ctx context.Context, sel annotation.Marker) error {
	if err := m.committer.DeleteMarker(ctx, sel.FloorplanID, sel.ID); err != nil {
		return fmt.Errorf("deleting marker %d: %w", sel.ID, err)
	}
	m.mu.Lock()
	if m.selected != nil && m.selected.ID == sel.ID {
		m.selected = nil
	}
	m.mu.Unlock()
	m.emit(Event{Kind: EventDeleted, Marker: &sel})
	return nil
}

func (m *Machine) duplicate(ctx context.Context, sel annotation.Marker) error {
	d := annotation.Duplicate(sel, DuplicateOffset, annotation.NewUniqueID())
	m.mu.Lock()
	if m.author != nil {
		d.AuthorID = annotation.String(m.author.ID)
		d.AuthorName = annotation.String(m.author.Name)
	}
	m.mu.Unlock()
	st := m.vp.State()
	if err := annotation.Validate(d, st.PageCount); err != nil {
		return err
	}
	created, err := m.committer.DuplicateMarker(ctx, sel.FloorplanID, d)
	if err != nil {
		return fmt.Errorf("duplicating marker %d: %w", sel.ID, err)
	}
	m.mu.Lock()
	m.setSelectedLocked(created)
	m.mu.Unlock()
	m.emit(Event{Kind: EventDuplicated, Marker: created})
	return nil
}

func (m *Machine) emit(e Event) {
	m.onEvent(e)
}

func (m *Machine) transformLocked() geometry.Transform {
	return m.vp.Transform(m.renderScale)
}

func (m *Machine) newMarkerLocked() annotation.Marker {
	mk := m.defaults.Clone()
	mk.Type = m.toolType
	if info, ok := annotation.Lookup(m.toolType); ok && info.Kind == annotation.KindText && mk.TextContent == nil {
		mk.TextContent = annotation.String("Text")
	}
	return mk
}

func (m *Machine) appendPointLocked(p geometry.Point, tr geometry.Transform) {
	last := m.points[len(m.points)-1]
	if geometry.Distance(last, p) > tr.LengthToPDF(m.threshold) {
		m.points = append(m.points, p)
	}
	m.preview = nil
}

func (m *Machine) resizeLocked(p geometry.Point) {
	start, _ := m.temp.Position()
	if lineLike[m.temp.Type] {
		m.temp.EndX, m.temp.EndY = annotation.Float(p.X), annotation.Float(p.Y)
		return
	}
	m.temp.Width = annotation.Float(p.X - start.X)
	m.temp.Height = annotation.Float(p.Y - start.Y)
}

func (m *Machine) resetLocked() {
	m.state = StateIdle
	m.temp = nil
	m.points = nil
	m.preview = nil
	m.panFrom = nil
	m.dragFrom = nil
	m.dragDelta = geometry.Point{}
}

// normalizeShape turns a dragged box into a top-left position with
// non-negative size. Line-like shapes keep their direction.
func normalizeShape(mk annotation.Marker) annotation.Marker {
	if lineLike[mk.Type] || mk.Width == nil || mk.Height == nil {
		return mk
	}
	start, _ := mk.Position()
	r := geometry.RectFromCorners(start, geometry.Pt(start.X+*mk.Width, start.Y+*mk.Height))
	mk.SetPosition(r.Min)
	mk.Width = annotation.Float(r.Width())
	mk.Height = annotation.Float(r.Height())
	return mk
}

// exceeds reports whether a sized shape is larger than thr on either axis.
func exceeds(mk annotation.Marker, thr float64) bool {
	start, _ := mk.Position()
	end, ok := mk.End()
	if !ok {
		return false
	}
	return math.Abs(end.X-start.X) > thr || math.Abs(end.Y-start.Y) > thr
}
