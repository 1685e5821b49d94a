package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sitewalk/sitewalk/internal/apperror"
)

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestIdentity(t *testing.T) {
	e := echo.New()
	e.Use(Identity())
	e.GET("/who", func(c echo.Context) error {
		return c.String(http.StatusOK, GetUserID(c)+"|"+GetUserName(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set("X-User-ID", " u-7 ")
	req.Header.Set("X-User-Name", "<b>Dana</b>")
	rec := serve(e, req)
	if got := rec.Body.String(); got != "u-7|Dana" {
		t.Errorf("got %q", got)
	}

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/who", nil))
	if got := rec.Body.String(); got != "|" {
		t.Errorf("anonymous request: got %q", got)
	}
}

func TestCSRF_SkipsAPI(t *testing.T) {
	e := echo.New()
	e.Use(CSRF())
	e.POST("/api/v1/things", func(c echo.Context) error { return c.NoContent(http.StatusCreated) })

	rec := serve(e, httptest.NewRequest(http.MethodPost, "/api/v1/things", nil))
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestCSRF_RequiresMatchingToken(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		_ = c.String(apperror.SafeCode(err), apperror.SafeMessage(err))
	}
	e.Use(CSRF())
	e.GET("/form", func(c echo.Context) error { return c.String(http.StatusOK, GetCSRFToken(c)) })
	e.POST("/form", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/form", nil))
	token := rec.Body.String()
	if len(token) != 2*csrfTokenLength {
		t.Fatalf("unexpected token %q", token)
	}
	cookie := rec.Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodPost, "/form", nil)
	req.AddCookie(cookie)
	if rec := serve(e, req); rec.Code != http.StatusForbidden {
		t.Errorf("missing header: expected 403, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/form", nil)
	req.AddCookie(cookie)
	req.Header.Set(csrfHeaderName, token)
	if rec := serve(e, req); rec.Code != http.StatusOK {
		t.Errorf("matching header: expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/form", strings.NewReader("csrf_token="+token))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	if rec := serve(e, req); rec.Code != http.StatusForbidden {
		t.Errorf("no cookie: expected 403, got %d", rec.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewRateLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow("10.0.0.1"); !ok {
			t.Fatalf("request %d should pass", i+1)
		}
	}
	ok, wait := l.Allow("10.0.0.1")
	if ok || wait != time.Minute {
		t.Errorf("third request: ok=%v wait=%v", ok, wait)
	}
	if ok, _ := l.Allow("10.0.0.2"); !ok {
		t.Error("other IPs have their own window")
	}

	now = now.Add(time.Minute)
	if ok, _ := l.Allow("10.0.0.1"); !ok {
		t.Error("window should reset after the period")
	}

	now = now.Add(3 * time.Minute)
	l.Sweep()
	if len(l.windows) != 0 {
		t.Errorf("expected expired windows swept, have %d", len(l.windows))
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	e := echo.New()
	l := NewRateLimiter(1, time.Hour)
	e.POST("/upload", func(c echo.Context) error { return c.NoContent(http.StatusCreated) }, l.Middleware())

	if rec := serve(e, httptest.NewRequest(http.MethodPost, "/upload", nil)); rec.Code != http.StatusCreated {
		t.Fatalf("first upload: %d", rec.Code)
	}
	rec := serve(e, httptest.NewRequest(http.MethodPost, "/upload", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestTrustedProxies(t *testing.T) {
	extract := buildIPExtractor([]string{"10.0.0.0/8", "not-a-cidr"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.1.2.3")
	if got := extract(req); got != "203.0.113.9" {
		t.Errorf("trusted peer: got %q", got)
	}

	req.RemoteAddr = "198.51.100.4:5555"
	if got := extract(req); got != "198.51.100.4" {
		t.Errorf("untrusted peer: got %q", got)
	}
}
