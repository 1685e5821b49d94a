package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/sitewalk/sitewalk/internal/apperror"
	"github.com/sitewalk/sitewalk/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{Env: "development", Port: 8080, BaseURL: "http://localhost:8080"}
}

func serve(a *App, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestErrorHandler_API(t *testing.T) {
	a := New(testConfig(), nil, nil)
	a.Echo.GET("/api/v1/conflict", func(c echo.Context) error {
		return apperror.NewConflict("marker was changed by someone else")
	})
	a.Echo.GET("/api/v1/boom", func(c echo.Context) error {
		return errors.New("dial tcp: connection refused")
	})

	tests := []struct {
		path string
		code int
		typ  string
		msg  string
	}{
		{"/api/v1/conflict", http.StatusConflict, "conflict", "marker was changed by someone else"},
		{"/api/v1/boom", http.StatusInternalServerError, "internal_error", defaultErrorMessage(http.StatusInternalServerError)},
		{"/api/v1/missing", http.StatusNotFound, "not_found", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := serve(a, http.MethodGet, tt.path)
			if rec.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, rec.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decoding body %q: %v", rec.Body.String(), err)
			}
			if body["type"] != tt.typ {
				t.Errorf("expected type %q, got %q", tt.typ, body["type"])
			}
			if tt.msg != "" && body["message"] != tt.msg {
				t.Errorf("expected message %q, got %q", tt.msg, body["message"])
			}
			if strings.Contains(rec.Body.String(), "connection refused") {
				t.Error("internal error detail leaked to client")
			}
		})
	}
}

func TestErrorHandler_Page(t *testing.T) {
	a := New(testConfig(), nil, nil)
	a.Echo.GET("/floorplans/x/view", func(c echo.Context) error {
		return apperror.NewNotFound("floorplan not found")
	})

	rec := serve(a, http.MethodGet, "/floorplans/x/view")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<!DOCTYPE html>") || !strings.Contains(body, "floorplan not found") {
		t.Errorf("expected HTML error page, got %q", body)
	}
}

func TestHealth(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	a := New(testConfig(), nil, rdb)
	a.Echo.GET("/healthz", a.health)

	rec := serve(a, http.MethodGet, "/healthz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a database, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "degraded" || body["database"] != "missing" || body["redis"] != "ok" {
		t.Errorf("unexpected health %v", body)
	}

	mr.Close()
	rec = serve(a, http.MethodGet, "/healthz")
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["redis"] != "unreachable" {
		t.Errorf("expected redis unreachable after close, got %v", body)
	}
}
