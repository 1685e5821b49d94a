package floorplans

import (
	"bytes"
	"encoding/json"
	"errors"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/sitewalk/sitewalk/internal/annotation"
	"github.com/sitewalk/sitewalk/internal/apperror"
	"github.com/sitewalk/sitewalk/internal/calibration"
	"github.com/sitewalk/sitewalk/internal/middleware"
)

type testServer struct {
	e    *echo.Echo
	repo *memRepo
	bus  *recordingBus
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	repo := newMemRepo()
	bus := &recordingBus{}
	cache := newRecordingCache()
	fps := NewFloorplanService(repo, cache, bus, 1<<20)
	markers := NewMarkerService(repo, repo, cache, bus)

	e := echo.New()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if he, ok := err.(*echo.HTTPError); ok {
			_ = c.JSON(he.Code, map[string]any{"message": he.Message})
			return
		}
		var typ string
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			typ = appErr.Type
		}
		_ = c.JSON(apperror.SafeCode(err), map[string]string{"type": typ, "message": apperror.SafeMessage(err)})
	}
	e.Use(middleware.Identity())
	RegisterRoutes(e.Group("/api/v1"), e, NewHandler(fps, markers, bus), nil)
	return &testServer{e: e, repo: repo, bus: bus}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	} else {
		r = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-User-ID", "u-1")
	req.Header.Set("X-User-Name", "Dana")
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHandler_Upload(t *testing.T) {
	s := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("name", "Ground floor")
	part, _ := mw.CreateFormFile("file", "ground.png")
	_, _ = part.Write(pngBytes(t, 300, 200))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/proj-9/floorplans", &body)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	req.Header.Set("X-User-ID", "u-1")
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	fp := decode[annotation.Floorplan](t, rec)
	if fp.Name != "Ground floor" || fp.ProjectID != "proj-9" || fp.PageCount != 1 || len(fp.PDFData) != 0 {
		t.Errorf("unexpected floorplan %+v", fp)
	}

	list := decode[[]annotation.Floorplan](t, s.do(t, http.MethodGet, "/api/v1/projects/proj-9/floorplans", nil))
	if len(list) != 1 || list[0].ID != fp.ID {
		t.Errorf("unexpected list %+v", list)
	}
}

func TestHandler_PatchNullLayer(t *testing.T) {
	s := newTestServer(t)
	s.repo.seedFloorplan("fp-1", 1)

	rec := s.do(t, http.MethodPost, "/api/v1/floorplans/fp-1/layers", LayerInput{Name: "Plumbing"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create layer: %d %s", rec.Code, rec.Body.String())
	}
	layer := decode[annotation.Layer](t, rec)

	m := cameraAt(5, 5)
	m.LayerID = &layer.ID
	rec = s.do(t, http.MethodPost, "/api/v1/floorplans/fp-1/markers", m)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create marker: %d %s", rec.Code, rec.Body.String())
	}
	v1 := decode[annotation.Marker](t, rec)

	rec = s.do(t, http.MethodPatch, "/api/v1/floorplans/fp-1/markers/"+itoa(v1.ID), map[string]any{"layer_id": nil})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", rec.Code, rec.Body.String())
	}
	if v2 := decode[annotation.Marker](t, rec); v2.LayerID != nil || v2.Version != 2 {
		t.Errorf("expected layer cleared on version 2, got %+v", v2)
	}
}

func TestHandler_UploadWithoutFile(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/projects/p/floorplans", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_MarkerLifecycle(t *testing.T) {
	s := newTestServer(t)
	s.repo.seedFloorplan("fp-1", 1)

	rec := s.do(t, http.MethodPost, "/api/v1/floorplans/fp-1/markers", cameraAt(10, 20))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	v1 := decode[annotation.Marker](t, rec)
	if v1.AuthorName == nil || *v1.AuthorName != "Dana" {
		t.Errorf("expected author from identity headers, got %v", v1.AuthorName)
	}

	rec = s.do(t, http.MethodPatch, "/api/v1/floorplans/fp-1/markers/"+itoa(v1.ID), map[string]any{"x": 42.0})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", rec.Code, rec.Body.String())
	}
	v2 := decode[annotation.Marker](t, rec)
	if v2.Version != 2 || *v2.X != 42 || *v2.ParentID != v1.ID {
		t.Errorf("unexpected version %+v", v2)
	}

	rec = s.do(t, http.MethodPatch, "/api/v1/floorplans/fp-1/markers/"+itoa(v1.ID), map[string]any{"x": 1.0})
	if rec.Code != http.StatusConflict {
		t.Errorf("patch superseded: expected 409, got %d", rec.Code)
	}

	list := decode[[]annotation.Marker](t, s.do(t, http.MethodGet, "/api/v1/floorplans/fp-1/markers?page=1", nil))
	if len(list) != 1 || list[0].ID != v2.ID {
		t.Errorf("expected only the current version listed, got %+v", list)
	}

	history := decode[[]annotation.Marker](t, s.do(t, http.MethodGet, "/api/v1/floorplans/fp-1/markers/"+itoa(v2.ID)+"/history", nil))
	if len(history) != 2 || history[0].ID != v1.ID {
		t.Errorf("unexpected history %+v", history)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/floorplans/fp-1/markers/"+itoa(v2.ID)+"/comments", CommentInput{Body: "Mounted 3m up"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("comment: %d %s", rec.Code, rec.Body.String())
	}
	comments := decode[[]annotation.Comment](t, s.do(t, http.MethodGet, "/api/v1/floorplans/fp-1/markers/"+itoa(v1.ID)+"/comments", nil))
	if len(comments) != 1 || comments[0].Body != "Mounted 3m up" {
		t.Errorf("unexpected comments %+v", comments)
	}

	if rec := s.do(t, http.MethodDelete, "/api/v1/floorplans/fp-1/markers/"+itoa(v2.ID), nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete: expected 204, got %d", rec.Code)
	}
	list = decode[[]annotation.Marker](t, s.do(t, http.MethodGet, "/api/v1/floorplans/fp-1/markers", nil))
	if len(list) != 0 {
		t.Errorf("expected empty page after delete, got %d", len(list))
	}
}

func TestHandler_MarkerValidationType(t *testing.T) {
	s := newTestServer(t)
	s.repo.seedFloorplan("fp-1", 1)

	m := cameraAt(1, 1)
	m.Page = 4
	rec := s.do(t, http.MethodPost, "/api/v1/floorplans/fp-1/markers", m)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	body := decode[map[string]string](t, rec)
	if body["type"] != "page_out_of_range" {
		t.Errorf("expected page_out_of_range, got %q", body["type"])
	}
}

func TestHandler_BadParams(t *testing.T) {
	s := newTestServer(t)
	s.repo.seedFloorplan("fp-1", 1)

	for _, path := range []string{
		"/api/v1/floorplans/fp-1/markers?page=0",
		"/api/v1/floorplans/fp-1/markers?page=two",
		"/api/v1/floorplans/fp-1/markers/abc/history",
		"/api/v1/floorplans/fp-1/export.png?scale=20",
	} {
		if rec := s.do(t, http.MethodGet, path, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, rec.Code)
		}
	}
}

func TestHandler_Calibration(t *testing.T) {
	s := newTestServer(t)
	s.repo.seedFloorplan("fp-1", 1)

	if rec := s.do(t, http.MethodGet, "/api/v1/floorplans/fp-1/calibration?page=1", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 before calibration, got %d", rec.Code)
	}

	rec := s.do(t, http.MethodPost, "/api/v1/floorplans/fp-1/calibration", map[string]any{
		"page":                1,
		"start":               map[string]float64{"x": 0, "y": 0},
		"end":                 map[string]float64{"x": 0, "y": 200},
		"real_world_distance": 10,
		"unit":                "m",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("save: %d %s", rec.Code, rec.Body.String())
	}
	if cal := decode[calibration.Calibration](t, rec); cal.ScaleFactor != 0.05 {
		t.Errorf("expected scale 0.05, got %v", cal.ScaleFactor)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/floorplans/fp-1/calibration?page=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after calibration, got %d", rec.Code)
	}
}

func TestHandler_Layers(t *testing.T) {
	s := newTestServer(t)
	s.repo.seedFloorplan("fp-1", 1)

	a := decode[annotation.Layer](t, s.do(t, http.MethodPost, "/api/v1/floorplans/fp-1/layers", LayerInput{Name: "A"}))
	b := decode[annotation.Layer](t, s.do(t, http.MethodPost, "/api/v1/floorplans/fp-1/layers", LayerInput{Name: "B"}))

	rec := s.do(t, http.MethodPut, "/api/v1/floorplans/fp-1/layers/reorder", ReorderInput{LayerIDs: []int64{b.ID, a.ID}})
	if rec.Code != http.StatusOK {
		t.Fatalf("reorder: %d %s", rec.Code, rec.Body.String())
	}
	layers := decode[[]annotation.Layer](t, rec)
	if layers[0].ID != b.ID {
		t.Errorf("expected B first, got %+v", layers)
	}

	if rec := s.do(t, http.MethodDelete, "/api/v1/floorplans/fp-1/layers/"+itoa(a.ID), nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete layer: expected 204, got %d", rec.Code)
	}
}

func TestHandler_OverlayAndExport(t *testing.T) {
	s := newTestServer(t)
	s.repo.seedFloorplan("fp-1", 1)
	s.do(t, http.MethodPost, "/api/v1/floorplans/fp-1/markers", cameraAt(100, 100))

	rec := s.do(t, http.MethodGet, "/floorplans/fp-1/overlay.svg?page=1", nil)
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "<svg") {
		t.Fatalf("overlay: %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "image/svg+xml" {
		t.Errorf("unexpected content type %q", ct)
	}

	// The seeded floorplan has no content, so the export falls back to a
	// blank page of the native size.
	rec = s.do(t, http.MethodGet, "/floorplans/fp-1/export.png?page=1&scale=0.5", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: %d %s", rec.Code, rec.Body.String())
	}
	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatalf("decoding export: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 300 || b.Dy() != 200 {
		t.Errorf("expected 300x200 export, got %v", b)
	}

	if rec := s.do(t, http.MethodGet, "/floorplans/fp-1/export.png?page=2", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing page: expected 404, got %d", rec.Code)
	}
}

func TestHandler_View(t *testing.T) {
	s := newTestServer(t)
	s.repo.seedFloorplan("fp-1", 2)
	m := cameraAt(100, 100)
	m.Label = annotation.String("Lobby <cam>")
	s.do(t, http.MethodPost, "/api/v1/floorplans/fp-1/markers", m)

	rec := s.do(t, http.MethodGet, "/floorplans/fp-1/view?page=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("view: %d %s", rec.Code, rec.Body.String())
	}
	html := rec.Body.String()
	for _, want := range []string{"Level fp-1", "Page 1 of 2", `rel="next"`, "<svg", "Not calibrated", "camera"} {
		if !strings.Contains(html, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if strings.Contains(html, `rel="prev"`) {
		t.Error("first page should have no previous link")
	}
}

func TestHandler_EventsUnavailable(t *testing.T) {
	s := newTestServer(t)
	s.repo.seedFloorplan("fp-1", 1)
	if rec := s.do(t, http.MethodGet, "/api/v1/floorplans/fp-1/events", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a broker, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/v1/floorplans/nope/events", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown floorplan, got %d", rec.Code)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
