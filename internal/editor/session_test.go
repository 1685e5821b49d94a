package editor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"
	"testing"

	"github.com/sitewalk/sitewalk/internal/annotation"
	"github.com/sitewalk/sitewalk/internal/calibration"
	"github.com/sitewalk/sitewalk/internal/geometry"
)

// --- Mock backend ---

type mockBackend struct {
	mu sync.Mutex

	fp      *annotation.Floorplan
	layers  []annotation.Layer
	markers map[int][]annotation.Marker
	cal     map[int]*calibration.Calibration

	createErr error
	listCalls int
	created   []annotation.Marker
	savedCals []calibration.Calibration
	nextID    int64
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		fp: &annotation.Floorplan{
			ID:          "fp-1",
			ContentType: annotation.ContentPNG,
			PageCount:   2,
			Pages:       []annotation.PageSize{{Width: 600, Height: 400}, {Width: 600, Height: 400}},
		},
		markers: map[int][]annotation.Marker{},
		cal:     map[int]*calibration.Calibration{},
		nextID:  100,
	}
}

func (b *mockBackend) GetFloorplan(_ context.Context, id string) (*annotation.Floorplan, error) {
	if id != b.fp.ID {
		return nil, fmt.Errorf("floorplan %s not found", id)
	}
	return b.fp, nil
}

func (b *mockBackend) ListLayers(context.Context, string) ([]annotation.Layer, error) {
	return b.layers, nil
}

func (b *mockBackend) ListMarkers(_ context.Context, _ string, page int) ([]annotation.Marker, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listCalls++
	return append([]annotation.Marker(nil), b.markers[page]...), nil
}

func (b *mockBackend) GetCalibration(_ context.Context, _ string, page int) (*calibration.Calibration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cal[page], nil
}

func (b *mockBackend) CreateMarker(_ context.Context, _ string, m annotation.Marker) (*annotation.Marker, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.createErr != nil {
		return nil, b.createErr
	}
	b.nextID++
	m.ID = b.nextID
	b.created = append(b.created, m)
	b.markers[m.Page] = append(b.markers[m.Page], m)
	return &m, nil
}

func (b *mockBackend) UpdateMarker(_ context.Context, _ string, _ int64, m annotation.Marker) (*annotation.Marker, error) {
	return &m, nil
}

func (b *mockBackend) DeleteMarker(context.Context, string, int64) error {
	return nil
}

func (b *mockBackend) DuplicateMarker(_ context.Context, _ string, m annotation.Marker) (*annotation.Marker, error) {
	return &m, nil
}

func (b *mockBackend) SaveCalibration(_ context.Context, c calibration.Calibration) (*calibration.Calibration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c.ID = "cal-1"
	b.savedCals = append(b.savedCals, c)
	b.cal[c.Page] = &c
	return &c, nil
}

func (b *mockBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listCalls
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recordingNotifier) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordingNotifier) all() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

func fill(c color.Color, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

func solid(c color.Color) PageLoader {
	return PageLoaderFunc(func(_ context.Context, fp *annotation.Floorplan, page int, rs float64) (image.Image, error) {
		size := fp.Page(page)
		return fill(c, int(size.Width*rs), int(size.Height*rs)), nil
	})
}

func openTest(t *testing.T, b *mockBackend, opts Options) *Session {
	t.Helper()
	if opts.Loader == nil {
		opts.Loader = solid(color.White)
	}
	opts.ViewportWidth = 1200
	s, err := Open(context.Background(), b, "fp-1", opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.WaitRenders()
	return s
}

// --- Tests ---

func TestOpen_LoadsFirstPage(t *testing.T) {
	b := newMockBackend()
	b.markers[1] = []annotation.Marker{{ID: 1, Page: 1, Type: annotation.TypeCamera, X: annotation.Float(5), Y: annotation.Float(5)}}
	b.cal[1] = &calibration.Calibration{FloorplanID: "fp-1", Page: 1, ScaleFactor: 0.5, Unit: "ft"}

	s := openTest(t, b, Options{})

	if got := s.Viewport.State().Page; got != 1 {
		t.Errorf("expected page 1, got %d", got)
	}
	if len(s.Markers()) != 1 {
		t.Errorf("expected 1 marker, got %d", len(s.Markers()))
	}
	if s.CurrentCalibration() == nil {
		t.Error("expected calibration for page 1")
	}
	if rs := s.RenderScale(); rs != 2 {
		t.Errorf("expected render scale 2, got %v", rs)
	}
	if img, page := s.Raster(); img == nil || page != 1 {
		t.Errorf("expected raster for page 1, got %v on %d", img, page)
	}
}

func TestOpen_UnknownFloorplan(t *testing.T) {
	b := newMockBackend()
	if _, err := Open(context.Background(), b, "missing", Options{}); err == nil {
		t.Fatal("expected error for unknown floorplan")
	}
}

func TestOnPageChange_RefetchesPageData(t *testing.T) {
	b := newMockBackend()
	b.markers[2] = []annotation.Marker{
		{ID: 5, Page: 2, Type: annotation.TypeNote, X: annotation.Float(1), Y: annotation.Float(1)},
		{ID: 6, Page: 2, Type: annotation.TypeNote, X: annotation.Float(2), Y: annotation.Float(2)},
	}
	b.cal[1] = &calibration.Calibration{Page: 1, ScaleFactor: 1, Unit: "ft"}
	s := openTest(t, b, Options{})

	if err := s.OnPageChange(context.Background(), 2); err != nil {
		t.Fatalf("page change: %v", err)
	}
	s.WaitRenders()

	if len(s.Markers()) != 2 {
		t.Errorf("expected page 2 markers, got %d", len(s.Markers()))
	}
	if s.CurrentCalibration() != nil {
		t.Error("page 2 has no calibration")
	}
	if _, page := s.Raster(); page != 2 {
		t.Errorf("expected raster for page 2, got %d", page)
	}
}

func TestRequestRender_DiscardsStaleResult(t *testing.T) {
	b := newMockBackend()
	release := make(chan struct{})
	page1 := fill(color.Black, 4, 4)
	page2 := fill(color.White, 4, 4)
	var first sync.Once
	loader := PageLoaderFunc(func(_ context.Context, _ *annotation.Floorplan, page int, _ float64) (image.Image, error) {
		if page == 1 {
			first.Do(func() { <-release })
			return page1, nil
		}
		return page2, nil
	})

	s, err := Open(context.Background(), b, "fp-1", Options{Loader: loader, ViewportWidth: 1200})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.OnPageChange(context.Background(), 2); err != nil {
		t.Fatalf("page change: %v", err)
	}
	close(release)
	s.WaitRenders()

	img, page := s.Raster()
	if page != 2 || img != image.Image(page2) {
		t.Errorf("stale page 1 render must be discarded, got page %d", page)
	}
}

func TestRequestRender_FailureShowsEmptyState(t *testing.T) {
	b := newMockBackend()
	n := &recordingNotifier{}
	loader := PageLoaderFunc(func(context.Context, *annotation.Floorplan, int, float64) (image.Image, error) {
		return nil, errors.New("corrupt page")
	})
	s := openTest(t, b, Options{Loader: loader, Notifier: n})

	if img, _ := s.Raster(); img != nil {
		t.Error("expected empty raster after render failure")
	}
	notices := n.all()
	if len(notices) != 1 || notices[0].Severity != SeverityNeutral {
		t.Errorf("expected one neutral notice, got %+v", notices)
	}
}

func TestCommit_RefetchesMarkers(t *testing.T) {
	b := newMockBackend()
	s := openTest(t, b, Options{})
	before := b.calls()

	ctx := context.Background()
	if err := s.SetToolMode("rectangle"); err != nil {
		t.Fatalf("set tool: %v", err)
	}
	// Render scale 2: screen (20,20)-(100,80) is PDF (10,10)-(50,40).
	if err := s.PointerDown(ctx, geometry.Pt(20, 20)); err != nil {
		t.Fatalf("down: %v", err)
	}
	if err := s.PointerMove(ctx, geometry.Pt(100, 80)); err != nil {
		t.Fatalf("move: %v", err)
	}
	if err := s.PointerUp(ctx, geometry.Pt(100, 80)); err != nil {
		t.Fatalf("up: %v", err)
	}

	if len(b.created) != 1 {
		t.Fatalf("expected one create, got %d", len(b.created))
	}
	m := b.created[0]
	if *m.Width != 40 || *m.Height != 30 {
		t.Errorf("expected 40x30 rectangle, got %vx%v", *m.Width, *m.Height)
	}
	if b.calls() != before+1 {
		t.Errorf("expected one marker refetch, got %d", b.calls()-before)
	}
	if len(s.Markers()) != 1 {
		t.Errorf("expected refreshed marker list, got %d", len(s.Markers()))
	}
}

func TestCommit_TransportFailureIsTransient(t *testing.T) {
	b := newMockBackend()
	b.createErr = errors.New("connection refused")
	n := &recordingNotifier{}
	s := openTest(t, b, Options{Notifier: n})
	before := b.calls()

	ctx := context.Background()
	_ = s.SetToolMode(string(annotation.TypeCamera))
	if err := s.PointerDown(ctx, geometry.Pt(50, 50)); err == nil {
		t.Fatal("expected commit error")
	}
	notices := n.all()
	if len(notices) != 1 || notices[0].Severity != SeverityTransient {
		t.Errorf("expected transient notice, got %+v", notices)
	}
	if s.Drawing.Pending() == nil {
		t.Error("pending marker must be kept for retry")
	}
	if b.calls() != before {
		t.Error("failed commit must not refetch")
	}

	b.mu.Lock()
	b.createErr = nil
	b.mu.Unlock()
	if err := s.Retry(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(b.created) != 1 || s.Drawing.Pending() != nil {
		t.Error("retry should commit the pending marker")
	}
}

func TestSetToolMode_Unknown(t *testing.T) {
	n := &recordingNotifier{}
	s := openTest(t, newMockBackend(), Options{Notifier: n})
	if err := s.SetToolMode("lasso"); err == nil {
		t.Fatal("expected unknown tool error")
	}
	if got := n.all(); len(got) != 1 || got[0].Severity != SeverityBlocking {
		t.Errorf("expected blocking notice, got %+v", got)
	}
}

func TestCalibrationFlow(t *testing.T) {
	b := newMockBackend()
	s := openTest(t, b, Options{})
	ctx := context.Background()

	if err := s.BeginCalibration(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.CalibrationClick(geometry.Pt(0, 0)); err != nil {
		t.Fatalf("first click: %v", err)
	}
	if err := s.CalibrationClick(geometry.Pt(200, 0)); err != nil {
		t.Fatalf("second click: %v", err)
	}
	saved, err := s.SubmitCalibration(ctx, 50, "ft")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if saved.ScaleFactor != 0.5 {
		t.Errorf("expected scale 0.5 (100pt = 50ft), got %v", saved.ScaleFactor)
	}
	if s.CurrentCalibration() == nil || s.CurrentCalibration().ID != "cal-1" {
		t.Error("session should hold the saved calibration")
	}
}

func TestCalibrationFlow_InvalidDistanceBlocks(t *testing.T) {
	b := newMockBackend()
	n := &recordingNotifier{}
	s := openTest(t, b, Options{Notifier: n})

	_ = s.BeginCalibration()
	_ = s.CalibrationClick(geometry.Pt(0, 0))
	_ = s.CalibrationClick(geometry.Pt(200, 0))
	if _, err := s.SubmitCalibration(context.Background(), 0, "ft"); err == nil {
		t.Fatal("expected invalid calibration")
	}
	if len(b.savedCals) != 0 {
		t.Error("invalid calibration must not be saved")
	}
	if got := n.all(); len(got) != 1 || got[0].Severity != SeverityBlocking {
		t.Errorf("expected blocking notice, got %+v", got)
	}
}

func TestApplyChange(t *testing.T) {
	b := newMockBackend()
	s := openTest(t, b, Options{})
	ctx := context.Background()
	before := b.calls()

	_ = s.ApplyChange(ctx, annotation.ChangeEvent{Kind: annotation.ChangeMarkers, FloorplanID: "fp-1", Page: 2})
	_ = s.ApplyChange(ctx, annotation.ChangeEvent{Kind: annotation.ChangeMarkers, FloorplanID: "fp-other", Page: 1})
	if b.calls() != before {
		t.Error("changes for other pages or floorplans must be ignored")
	}

	b.mu.Lock()
	b.markers[1] = []annotation.Marker{{ID: 9, Page: 1, Type: annotation.TypeNote, X: annotation.Float(3), Y: annotation.Float(3)}}
	b.mu.Unlock()
	if err := s.ApplyChange(ctx, annotation.ChangeEvent{Kind: annotation.ChangeMarkers, FloorplanID: "fp-1", Page: 1}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(s.Markers()) != 1 {
		t.Error("expected remote change to refresh markers")
	}
}

func TestRefreshLayers_SyncsActiveLayer(t *testing.T) {
	b := newMockBackend()
	b.layers = []annotation.Layer{{ID: 1, FloorplanID: "fp-1", Name: "Security", Color: "#111111", Visible: true}}
	s := openTest(t, b, Options{})
	ctx := context.Background()

	if err := s.SetActiveLayer(1); err != nil {
		t.Fatalf("set layer: %v", err)
	}

	b.layers = []annotation.Layer{{ID: 1, FloorplanID: "fp-1", Name: "Security", Color: "#222222", Visible: true}}
	if err := s.ApplyChange(ctx, annotation.ChangeEvent{Kind: annotation.ChangeLayers, FloorplanID: "fp-1"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if l := s.Drawing.Layer(); l == nil || l.Color != "#222222" {
		t.Errorf("expected active layer recolored, got %+v", l)
	}

	b.layers = nil
	if err := s.RefreshLayers(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if l := s.Drawing.Layer(); l != nil {
		t.Errorf("expected deleted layer cleared, got %+v", l)
	}
}

func TestHandleEvent_ExportPNG(t *testing.T) {
	b := newMockBackend()
	b.markers[1] = []annotation.Marker{{
		ID: 1, Page: 1, Type: annotation.TypeRectangle, Color: "#ff0000",
		X: annotation.Float(10), Y: annotation.Float(10),
		Width: annotation.Float(100), Height: annotation.Float(100),
		FillColor: annotation.String("#ff0000"), Opacity: annotation.Float(1),
	}}
	s := openTest(t, b, Options{Loader: solid(color.White)})

	data, err := s.HandleEvent(context.Background(), EventExportFloorplan)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if got := img.Bounds().Size(); got != image.Pt(1200, 800) {
		t.Errorf("expected 1200x800 export, got %v", got)
	}
	r, g, _, _ := img.At(120, 120).RGBA()
	if r>>8 < 200 || g>>8 > 60 {
		t.Errorf("expected red fill inside the rectangle, got r=%d g=%d", r>>8, g>>8)
	}

	if _, err := s.HandleEvent(context.Background(), "print"); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("expected ErrUnknownEvent, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Severity
	}{
		{"missing geometry", fmt.Errorf("create: %w", annotation.ErrMissingGeometry), SeverityBlocking},
		{"page range", annotation.ErrPageOutOfRange, SeverityBlocking},
		{"opacity", annotation.ErrInvalidOpacity, SeverityBlocking},
		{"type change", annotation.ErrTypeMismatch, SeverityBlocking},
		{"calibration", calibration.ErrInvalidCalibration, SeverityBlocking},
		{"transport", errors.New("dial tcp: connection refused"), SeverityTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := Classify(tt.err)
			if n.Severity != tt.want {
				t.Errorf("expected %s, got %s", tt.want, n.Severity)
			}
			if n.Message == "" || !errors.Is(n.Err, tt.err) {
				t.Errorf("notice should carry a message and the error: %+v", n)
			}
		})
	}
}
