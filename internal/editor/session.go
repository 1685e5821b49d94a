// Package editor binds the annotation core to one open floorplan view: it
// owns the viewport, drawing machine, calibration flow, marker cache and
// page raster, and keeps them in step with the REST collaborator.
package editor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync"

	"github.com/sitewalk/sitewalk/internal/annotation"
	"github.com/sitewalk/sitewalk/internal/calibration"
	"github.com/sitewalk/sitewalk/internal/drawing"
	"github.com/sitewalk/sitewalk/internal/geometry"
	"github.com/sitewalk/sitewalk/internal/render"
	"github.com/sitewalk/sitewalk/internal/viewport"
)

// EventExportFloorplan is the UI event that requests a PNG export of the
// current page with its overlay.
const EventExportFloorplan = "export-floorplan"

// DefaultViewportWidth is the pixel width pages are fitted to when none is
// configured.
const DefaultViewportWidth = 1200.0

// ErrUnknownEvent is returned by HandleEvent for unsupported event names.
var ErrUnknownEvent = errors.New("unknown editor event")

// Backend is the persistence collaborator the session reads from and
// writes through.
type Backend interface {
	drawing.Committer
	calibration.Saver
	GetFloorplan(ctx context.Context, id string) (*annotation.Floorplan, error)
	ListLayers(ctx context.Context, floorplanID string) ([]annotation.Layer, error)
	ListMarkers(ctx context.Context, floorplanID string, page int) ([]annotation.Marker, error)
	GetCalibration(ctx context.Context, floorplanID string, page int) (*calibration.Calibration, error)
}

// Options configure a Session.
type Options struct {
	Loader        PageLoader
	Notifier      Notifier
	Logger        *slog.Logger
	ViewportWidth float64
	Author        *drawing.Author
}

// Session is one user's editing view of one floorplan.
type Session struct {
	backend  Backend
	loader   PageLoader
	notifier Notifier
	logger   *slog.Logger

	Viewport    *viewport.Controller
	Drawing     *drawing.Machine
	Calibration *calibration.Session

	mu            sync.Mutex
	floorplan     *annotation.Floorplan
	layers        []annotation.Layer
	markers       []annotation.Marker
	markersPage   int
	stale         bool
	cal           *calibration.Calibration
	raster        image.Image
	rasterPage    int
	renderScale   float64
	viewportWidth float64
	showAll       bool
	renders       sync.WaitGroup
}

// Open loads a floorplan and its first page.
func Open(ctx context.Context, backend Backend, floorplanID string, opts Options) (*Session, error) {
	if opts.Loader == nil {
		opts.Loader = ContentLoader{}
	}
	if opts.Notifier == nil {
		opts.Notifier = NotifierFunc(func(Notice) {})
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ViewportWidth <= 0 {
		opts.ViewportWidth = DefaultViewportWidth
	}

	fp, err := backend.GetFloorplan(ctx, floorplanID)
	if err != nil {
		return nil, fmt.Errorf("loading floorplan %s: %w", floorplanID, err)
	}
	layers, err := backend.ListLayers(ctx, floorplanID)
	if err != nil {
		return nil, fmt.Errorf("loading layers of %s: %w", floorplanID, err)
	}

	s := &Session{
		backend:       backend,
		loader:        opts.Loader,
		notifier:      opts.Notifier,
		logger:        opts.Logger.With(slog.String("floorplan_id", floorplanID)),
		floorplan:     fp,
		layers:        layers,
		viewportWidth: opts.ViewportWidth,
		renderScale:   1,
	}
	s.Viewport = viewport.New(fp.PageCount)
	s.Calibration = calibration.NewSession(backend, floorplanID, 1)
	s.Drawing = drawing.New(drawing.Options{
		FloorplanID: floorplanID,
		Viewport:    s.Viewport,
		Committer:   backend,
		HitTest:     render.HitTestFunc(s.Scene),
		OnEvent:     s.onDrawingEvent,
	})
	s.Drawing.SetAuthor(opts.Author)

	if err := s.OnPageChange(ctx, 1); err != nil {
		return nil, err
	}
	return s, nil
}

// Floorplan returns the open floorplan.
func (s *Session) Floorplan() *annotation.Floorplan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.floorplan
}

// Markers returns the cached marker list of the current page.
func (s *Session) Markers() []annotation.Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]annotation.Marker(nil), s.markers...)
}

// CurrentCalibration returns the calibration of the current page, if any.
func (s *Session) CurrentCalibration() *calibration.Calibration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cal
}

// Raster returns the background of the current page and the page it
// belongs to. A nil image is the neutral empty state.
func (s *Session) Raster() (image.Image, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raster, s.rasterPage
}

// RenderScale returns the current page render scale.
func (s *Session) RenderScale() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renderScale
}

// OnPageChange navigates to page and re-fetches its markers and
// calibration. The page raster loads in the background.
func (s *Session) OnPageChange(ctx context.Context, page int) error {
	st, req := s.Viewport.ChangePage(page)
	s.Drawing.Cancel()
	s.Calibration.SetPage(st.Page)

	s.mu.Lock()
	size := s.floorplan.Page(st.Page)
	s.renderScale = geometry.ComputeRenderScale(size.Width, s.viewportWidth)
	if s.renderScale <= 0 {
		s.renderScale = 1
	}
	rs := s.renderScale
	s.mu.Unlock()
	s.Drawing.SetRenderScale(rs)

	s.RequestRender(ctx, req)

	if err := s.RefreshMarkers(ctx); err != nil {
		return err
	}
	return s.refreshCalibration(ctx, st.Page)
}

// RefreshMarkers re-fetches the marker list of the current page. On failure
// the previous list is kept and a transient notice is sent.
func (s *Session) RefreshMarkers(ctx context.Context) error {
	page := s.Viewport.State().Page
	markers, err := s.backend.ListMarkers(ctx, s.floorplan.ID, page)
	if err != nil {
		err = fmt.Errorf("loading markers for page %d: %w", page, err)
		s.report(err)
		return err
	}
	s.mu.Lock()
	// A page change that raced the fetch owns the cache now.
	if s.Viewport.State().Page == page {
		s.markers = markers
		s.markersPage = page
		s.stale = false
	}
	s.mu.Unlock()
	return nil
}

// RefreshLayers re-fetches layers and keeps the active drawing layer in
// step with its stored color. A deleted active layer is cleared.
func (s *Session) RefreshLayers(ctx context.Context) error {
	layers, err := s.backend.ListLayers(ctx, s.floorplan.ID)
	if err != nil {
		err = fmt.Errorf("loading layers: %w", err)
		s.report(err)
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers = layers
	active := s.Drawing.Layer()
	if active == nil {
		return nil
	}
	for _, l := range layers {
		if l.ID == active.ID {
			layer := l
			s.Drawing.SetLayer(&layer)
			return nil
		}
	}
	s.Drawing.SetLayer(nil)
	return nil
}

func (s *Session) refreshCalibration(ctx context.Context, page int) error {
	cal, err := s.backend.GetCalibration(ctx, s.floorplan.ID, page)
	if err != nil {
		err = fmt.Errorf("loading calibration for page %d: %w", page, err)
		s.report(err)
		return err
	}
	s.mu.Lock()
	s.cal = cal
	s.mu.Unlock()
	return nil
}

// RequestRender loads the raster for req in the background. Results for a
// request that is no longer the newest are dropped.
func (s *Session) RequestRender(ctx context.Context, req viewport.RenderRequest) {
	s.mu.Lock()
	fp, rs := s.floorplan, s.renderScale
	s.mu.Unlock()

	s.renders.Add(1)
	go func() {
		defer s.renders.Done()
		img, err := s.loader.LoadPage(ctx, fp, req.Page, rs)

		s.mu.Lock()
		if !s.Viewport.IsCurrent(req) {
			s.mu.Unlock()
			s.logger.Debug("dropping stale page render",
				slog.Int("page", req.Page),
				slog.Uint64("seq", req.Seq),
			)
			return
		}
		if err != nil {
			img = nil
		}
		s.raster, s.rasterPage = img, req.Page
		s.mu.Unlock()

		if err != nil {
			s.logger.Warn("page render failed",
				slog.Int("page", req.Page),
				slog.Any("error", err),
			)
			s.notifier.Notify(Notice{
				Severity: SeverityNeutral,
				Message:  fmt.Sprintf("Page %d could not be displayed.", req.Page),
				Err:      err,
			})
		}
	}()
}

// WaitRenders blocks until every started page render has finished.
func (s *Session) WaitRenders() {
	s.renders.Wait()
}

// SetToolMode activates a drawing tool.
func (s *Session) SetToolMode(tool string) error {
	if err := s.Drawing.SetTool(drawing.Tool(tool)); err != nil {
		s.report(err)
		return err
	}
	return nil
}

// SetActiveLayer chooses the layer new markers land on. Zero clears it.
func (s *Session) SetActiveLayer(id int64) error {
	if id == 0 {
		s.Drawing.SetLayer(nil)
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.layers {
		if l.ID == id {
			layer := l
			s.Drawing.SetLayer(&layer)
			return nil
		}
	}
	return fmt.Errorf("layer %d not found on floorplan %s", id, s.floorplan.ID)
}

// SetShowAllLabels toggles labels on every marker.
func (s *Session) SetShowAllLabels(show bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showAll = show
}

// Scene snapshots what the overlay should currently show.
func (s *Session) Scene() render.Scene {
	st := s.Viewport.State()
	sel := s.Drawing.Selected()
	tmp := s.Drawing.Temp()

	s.mu.Lock()
	defer s.mu.Unlock()
	scene := render.Scene{
		Markers:       append([]annotation.Marker(nil), s.markers...),
		Layers:        append([]annotation.Layer(nil), s.layers...),
		Page:          st.Page,
		Transform:     st.Transform(s.renderScale),
		ShowAllLabels: s.showAll,
		Calibration:   s.cal,
		Temp:          tmp,
	}
	if sel != nil {
		scene.SelectedID = sel.ID
	}
	return scene
}

// SVG renders the current overlay at the given screen size.
func (s *Session) SVG(width, height int) string {
	return render.SVGString(s.Scene(), width, height)
}

// HandleEvent dispatches a named UI event. The export event returns the PNG
// bytes of the current page and overlay at zoom 1.
func (s *Session) HandleEvent(ctx context.Context, name string) ([]byte, error) {
	if name != EventExportFloorplan {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	return s.Export(ctx)
}

// Export composites the current page raster and overlay into a PNG.
func (s *Session) Export(ctx context.Context) ([]byte, error) {
	s.WaitRenders()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scene := s.Scene()
	scene.Temp = nil
	scene.SelectedID = 0
	scene.Transform = geometry.Transform{RenderScale: scene.Transform.RenderScale, Zoom: 1}

	s.mu.Lock()
	size := s.floorplan.Page(scene.Page)
	bg := s.raster
	if s.rasterPage != scene.Page {
		bg = nil
	}
	s.mu.Unlock()

	w := int(math.Ceil(size.Width * scene.Transform.RenderScale))
	h := int(math.Ceil(size.Height * scene.Transform.RenderScale))
	img := render.Raster(scene, bg, w, h)

	var buf bytes.Buffer
	if err := render.EncodePNG(&buf, img); err != nil {
		s.report(err)
		return nil, err
	}
	return buf.Bytes(), nil
}

// ApplyChange reacts to a change published by another viewer.
func (s *Session) ApplyChange(ctx context.Context, ev annotation.ChangeEvent) error {
	page := s.Viewport.State().Page
	if ev.FloorplanID != s.floorplan.ID || (ev.Page != 0 && ev.Page != page) {
		return nil
	}
	switch ev.Kind {
	case annotation.ChangeMarkers:
		return s.RefreshMarkers(ctx)
	case annotation.ChangeCalibration:
		return s.refreshCalibration(ctx, page)
	case annotation.ChangeLayers:
		return s.RefreshLayers(ctx)
	}
	return nil
}

// --- Input ---

// PointerDown forwards a press to the drawing machine.
func (s *Session) PointerDown(ctx context.Context, screen geometry.Point) error {
	return s.afterInput(ctx, s.Drawing.PointerDown(ctx, screen))
}

// PointerMove forwards motion to the drawing machine.
func (s *Session) PointerMove(ctx context.Context, screen geometry.Point) error {
	return s.afterInput(ctx, s.Drawing.PointerMove(ctx, screen))
}

// PointerUp forwards a release to the drawing machine.
func (s *Session) PointerUp(ctx context.Context, screen geometry.Point) error {
	return s.afterInput(ctx, s.Drawing.PointerUp(ctx, screen))
}

// DoubleClick forwards a double click to the drawing machine.
func (s *Session) DoubleClick(ctx context.Context, screen geometry.Point) error {
	return s.afterInput(ctx, s.Drawing.DoubleClick(ctx, screen))
}

// KeyDown forwards a keyboard shortcut.
func (s *Session) KeyDown(ctx context.Context, k drawing.Key) (bool, error) {
	handled, err := s.Drawing.KeyDown(ctx, k)
	return handled, s.afterInput(ctx, err)
}

// Retry resubmits a marker whose commit failed.
func (s *Session) Retry(ctx context.Context) error {
	return s.afterInput(ctx, s.Drawing.Retry(ctx))
}

// Wheel zooms around the pointer.
func (s *Session) Wheel(deltaY float64, pivot geometry.Point) {
	s.Viewport.Wheel(deltaY, pivot)
}

// BeginCalibration starts the two-click calibration flow.
func (s *Session) BeginCalibration() error {
	if err := s.Calibration.Begin(); err != nil {
		s.report(err)
		return err
	}
	s.Drawing.Cancel()
	return nil
}

// CalibrationClick records a reference point given in screen space.
func (s *Session) CalibrationClick(screen geometry.Point) error {
	p := s.Viewport.Transform(s.RenderScale()).ToPDF(screen)
	if err := s.Calibration.Click(p); err != nil {
		s.report(err)
		return err
	}
	return nil
}

// SubmitCalibration finishes the flow with the real-world distance.
func (s *Session) SubmitCalibration(ctx context.Context, distance float64, unit string) (*calibration.Calibration, error) {
	saved, err := s.Calibration.SubmitDistance(ctx, distance, unit)
	if err != nil {
		s.report(err)
		return nil, err
	}
	s.mu.Lock()
	s.cal = saved
	s.mu.Unlock()
	return saved, nil
}

// CancelCalibration abandons the calibration flow.
func (s *Session) CancelCalibration() error {
	return s.Calibration.Cancel()
}

func (s *Session) onDrawingEvent(e drawing.Event) {
	switch e.Kind {
	case drawing.EventCreated, drawing.EventUpdated, drawing.EventDeleted, drawing.EventDuplicated:
		s.mu.Lock()
		s.stale = true
		s.mu.Unlock()
		s.logger.Info("marker mutated", slog.String("kind", string(e.Kind)))
	}
}

// afterInput reports err and refreshes the marker list when the input
// mutated something.
func (s *Session) afterInput(ctx context.Context, err error) error {
	if err != nil {
		s.report(err)
	}
	s.mu.Lock()
	stale := s.stale
	s.mu.Unlock()
	if stale {
		if rerr := s.RefreshMarkers(ctx); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

func (s *Session) report(err error) {
	n := Classify(err)
	s.logger.Warn("editor error",
		slog.String("severity", n.Severity.String()),
		slog.Any("error", err),
	)
	s.notifier.Notify(n)
}
