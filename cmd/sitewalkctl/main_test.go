package main

import (
	"bytes"
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sitewalk/sitewalk/internal/annotation"
	"github.com/sitewalk/sitewalk/internal/calibration"
	"github.com/sitewalk/sitewalk/internal/editor"
	"github.com/sitewalk/sitewalk/internal/geometry"
)

// fakeBackend is an in-memory editor.Backend for one 600x400 floorplan.
type fakeBackend struct {
	mu      sync.Mutex
	fp      *annotation.Floorplan
	markers []annotation.Marker
	cals    []calibration.Calibration
	nextID  int64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{fp: &annotation.Floorplan{
		ID:          "fp-1",
		ContentType: annotation.ContentPNG,
		PageCount:   1,
		Pages:       []annotation.PageSize{{Width: 600, Height: 400}},
	}}
}

func (b *fakeBackend) GetFloorplan(context.Context, string) (*annotation.Floorplan, error) {
	return b.fp, nil
}

func (b *fakeBackend) ListLayers(context.Context, string) ([]annotation.Layer, error) {
	return nil, nil
}

func (b *fakeBackend) ListMarkers(context.Context, string, int) ([]annotation.Marker, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]annotation.Marker(nil), b.markers...), nil
}

func (b *fakeBackend) GetCalibration(context.Context, string, int) (*calibration.Calibration, error) {
	return nil, nil
}

func (b *fakeBackend) CreateMarker(_ context.Context, _ string, m annotation.Marker) (*annotation.Marker, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	m.ID = b.nextID
	b.markers = append(b.markers, m)
	return &m, nil
}

func (b *fakeBackend) UpdateMarker(_ context.Context, _ string, _ int64, m annotation.Marker) (*annotation.Marker, error) {
	return &m, nil
}

func (b *fakeBackend) DeleteMarker(context.Context, string, int64) error {
	return nil
}

func (b *fakeBackend) DuplicateMarker(_ context.Context, _ string, m annotation.Marker) (*annotation.Marker, error) {
	return &m, nil
}

func (b *fakeBackend) SaveCalibration(_ context.Context, c calibration.Calibration) (*calibration.Calibration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cals = append(b.cals, c)
	return &c, nil
}

func openFakeSession(t *testing.T, b *fakeBackend) *editor.Session {
	t.Helper()
	blank := editor.PageLoaderFunc(func(_ context.Context, _ *annotation.Floorplan, _ int, rs float64) (image.Image, error) {
		return image.NewRGBA(image.Rect(0, 0, int(600*rs), int(400*rs))), nil
	})
	sess, err := editor.Open(context.Background(), b, "fp-1", editor.Options{Loader: blank, ViewportWidth: 1200})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(sess.WaitRenders)
	return sess
}

func TestRunScript(t *testing.T) {
	b := newFakeBackend()
	sess := openFakeSession(t, b)
	out := filepath.Join(t.TempDir(), "page.png")

	steps := []Step{
		{Op: "tool", Tool: "camera"},
		{Op: "down", X: 100, Y: 80},
		{Op: "up", X: 100, Y: 80},
		{Op: "tool", Tool: "select"},
		{Op: "calibrate"},
		{Op: "calibrate-click", X: 0, Y: 0},
		{Op: "calibrate-click", X: 200, Y: 0},
		{Op: "calibrate-submit", Distance: 25, Unit: "ft"},
		{Op: "export", Out: out},
	}
	if err := runScript(context.Background(), sess, steps, &bytes.Buffer{}, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(b.markers) != 1 {
		t.Fatalf("expected 1 marker, got %d", len(b.markers))
	}
	// Viewport 1200 px over a 600 pt page is render scale 2.
	if p, _ := b.markers[0].Position(); p != geometry.Pt(50, 40) {
		t.Errorf("expected marker at (50,40), got %v", p)
	}
	if len(b.cals) != 1 || b.cals[0].ScaleFactor != 0.25 {
		t.Errorf("unexpected calibrations %+v", b.cals)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("export not written: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Error("export is not a PNG")
	}
}

func TestRunScript_StopsOnError(t *testing.T) {
	sess := openFakeSession(t, newFakeBackend())

	err := runScript(context.Background(), sess, []Step{{Op: "tool", Tool: "camera"}, {Op: "fly"}}, &bytes.Buffer{}, false)
	if err == nil || !strings.Contains(err.Error(), "step 2 (fly)") {
		t.Errorf("expected step 2 error, got %v", err)
	}

	err = runScript(context.Background(), sess, []Step{{Op: "fly"}, {Op: "tool", Tool: "nope"}}, &bytes.Buffer{}, true)
	if err != nil {
		t.Errorf("keep-going should swallow step errors, got %v", err)
	}
}

func TestLoadScript(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	if err := os.WriteFile(good, []byte(`{"floorplan_id":"fp-9","steps":[{"op":"page","page":2},{"op":"key","key":"d","mod":true}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := loadScript(good)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Step{{Op: "page", Page: 2}, {Op: "key", Key: "d", Mod: true}}
	if s.FloorplanID != "fp-9" {
		t.Errorf("unexpected floorplan %q", s.FloorplanID)
	}
	if diff := cmp.Diff(want, s.Steps); diff != "" {
		t.Errorf("steps (-want +got):\n%s", diff)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"steps":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadScript(bad); err == nil {
		t.Error("expected error for script without floorplan_id")
	}
}

func TestParsePoint(t *testing.T) {
	tests := []struct {
		in      string
		want    geometry.Point
		wantErr bool
	}{
		{"10,20", geometry.Pt(10, 20), false},
		{" 1.5 , -2 ", geometry.Pt(1.5, -2), false},
		{"10", geometry.Point{}, true},
		{"a,b", geometry.Point{}, true},
	}
	for _, tt := range tests {
		got, err := parsePoint(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parsePoint(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parsePoint(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestExportFormatFor(t *testing.T) {
	tests := []struct {
		format, out, want string
		wantErr           bool
	}{
		{"", "-", "png", false},
		{"", "plan.SVG", "svg", false},
		{"svg", "plan.png", "svg", false},
		{"", "plan.pdf", "", true},
		{"jpeg", "-", "", true},
	}
	for _, tt := range tests {
		got, err := exportFormatFor(tt.format, tt.out)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("exportFormatFor(%q, %q) = %q, %v", tt.format, tt.out, got, err)
		}
	}
}

func TestScaleCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"scale",
		"--from", "0,0", "--to", "100,0", "--distance", "25", "--unit", "ft",
		"--measure", "0,0", "--measure", "40,0",
	})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "scale factor: 0.25 ft per pt\nlength: 10.00 ft\n"
	if out.String() != want {
		t.Errorf("got %q, want %q", out.String(), want)
	}
}
