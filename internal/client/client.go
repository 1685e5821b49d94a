// Package client is a typed HTTP client for the floorplan REST API. It is
// the persistence collaborator of an editing session: it implements
// drawing.Committer and calibration.Saver.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sitewalk/sitewalk/internal/annotation"
	"github.com/sitewalk/sitewalk/internal/calibration"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int    `json:"-"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Type, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Client talks to one server. It is safe for concurrent use.
type Client struct {
	baseURL  string
	http     *http.Client
	userID   string
	userName string
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithUser sends identity headers the server's upstream auth proxy would
// normally set.
func WithUser(id, name string) Option {
	return func(c *Client) { c.userID, c.userName = id, name }
}

// WithLogger sets the logger for request tracing at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the server at baseURL (scheme and host, no path).
func New(baseURL string, opts ...Option) *Client {
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/api/v1",
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client sends requests to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// --- Floorplans ---

// ListFloorplans returns a project's floorplans without page content.
func (c *Client) ListFloorplans(ctx context.Context, projectID string) ([]annotation.Floorplan, error) {
	var out []annotation.Floorplan
	err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(projectID)+"/floorplans", nil, &out)
	return out, err
}

// GetFloorplan returns a floorplan including its page content.
func (c *Client) GetFloorplan(ctx context.Context, id string) (*annotation.Floorplan, error) {
	var out annotation.Floorplan
	if err := c.do(ctx, http.MethodGet, fpPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListLayers returns the layers of a floorplan in sort order.
func (c *Client) ListLayers(ctx context.Context, floorplanID string) ([]annotation.Layer, error) {
	var out []annotation.Layer
	err := c.do(ctx, http.MethodGet, fpPath(floorplanID)+"/layers", nil, &out)
	return out, err
}

// --- Markers ---

// ListMarkers returns the current markers on a page.
func (c *Client) ListMarkers(ctx context.Context, floorplanID string, page int) ([]annotation.Marker, error) {
	var out []annotation.Marker
	err := c.do(ctx, http.MethodGet, fpPath(floorplanID)+"/markers?page="+strconv.Itoa(page), nil, &out)
	return out, err
}

// CreateMarker persists a new marker.
func (c *Client) CreateMarker(ctx context.Context, floorplanID string, m annotation.Marker) (*annotation.Marker, error) {
	var out annotation.Marker
	if err := c.do(ctx, http.MethodPost, fpPath(floorplanID)+"/markers", m, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateMarker sends the full edited marker; the server stores it as the
// next version and returns that record.
func (c *Client) UpdateMarker(ctx context.Context, floorplanID string, id int64, m annotation.Marker) (*annotation.Marker, error) {
	// layer_id is always sent so a nil layer clears the server-side one.
	body := struct {
		annotation.Marker
		LayerID *int64 `json:"layer_id"`
	}{m, m.LayerID}
	var out annotation.Marker
	if err := c.do(ctx, http.MethodPatch, markerPath(floorplanID, id), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteMarker removes a marker.
func (c *Client) DeleteMarker(ctx context.Context, floorplanID string, id int64) error {
	return c.do(ctx, http.MethodDelete, markerPath(floorplanID, id), nil, nil)
}

// DuplicateMarker persists a copy as a new annotation.
func (c *Client) DuplicateMarker(ctx context.Context, floorplanID string, m annotation.Marker) (*annotation.Marker, error) {
	var out annotation.Marker
	if err := c.do(ctx, http.MethodPost, fpPath(floorplanID)+"/markers/duplicate", m, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkerHistory returns every version of a marker, oldest first.
func (c *Client) MarkerHistory(ctx context.Context, floorplanID string, id int64) ([]annotation.Marker, error) {
	var out []annotation.Marker
	err := c.do(ctx, http.MethodGet, markerPath(floorplanID, id)+"/history", nil, &out)
	return out, err
}

// ListComments returns comments across the marker's whole version chain.
func (c *Client) ListComments(ctx context.Context, floorplanID string, markerID int64) ([]annotation.Comment, error) {
	var out []annotation.Comment
	err := c.do(ctx, http.MethodGet, markerPath(floorplanID, markerID)+"/comments", nil, &out)
	return out, err
}

// AddComment appends a comment to a marker.
func (c *Client) AddComment(ctx context.Context, floorplanID string, markerID int64, body string) (*annotation.Comment, error) {
	var out annotation.Comment
	in := map[string]string{"body": body}
	if err := c.do(ctx, http.MethodPost, markerPath(floorplanID, markerID)+"/comments", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Calibration ---

// GetCalibration returns the calibration of a page, or nil when the page has
// none.
func (c *Client) GetCalibration(ctx context.Context, floorplanID string, page int) (*calibration.Calibration, error) {
	var out calibration.Calibration
	found := false
	err := c.doStatus(ctx, http.MethodGet, fpPath(floorplanID)+"/calibration?page="+strconv.Itoa(page), nil, &out, &found)
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}

// SaveCalibration creates or replaces the calibration of cal's page.
func (c *Client) SaveCalibration(ctx context.Context, cal calibration.Calibration) (*calibration.Calibration, error) {
	var out calibration.Calibration
	if err := c.do(ctx, http.MethodPost, fpPath(cal.FloorplanID)+"/calibration", cal, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Page images ---

// ExportPNG fetches the server-rendered PNG of a page at the given scale,
// with or without the marker overlay.
func (c *Client) ExportPNG(ctx context.Context, floorplanID string, page int, scale float64, overlay bool) ([]byte, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("scale", strconv.FormatFloat(scale, 'f', -1, 64))
	q.Set("overlay", strconv.FormatBool(overlay))
	path := fpPath(floorplanID) + "/export.png?" + q.Encode()

	resp, err := c.send(ctx, http.MethodGet, path, nil, "", "image/png")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return b, nil
}

// LoadPage fetches the page background without overlay so an editing
// session can draw its own markers on top. It satisfies editor.PageLoader.
func (c *Client) LoadPage(ctx context.Context, fp *annotation.Floorplan, page int, renderScale float64) (image.Image, error) {
	b, err := c.ExportPNG(ctx, fp.ID, page, renderScale, false)
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("decoding page %d of %s: %w", page, fp.ID, err)
	}
	return img, nil
}

// --- Transport ---

func fpPath(id string) string {
	return "/floorplans/" + url.PathEscape(id)
}

func markerPath(floorplanID string, id int64) string {
	return fpPath(floorplanID) + "/markers/" + strconv.FormatInt(id, 10)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	return c.doStatus(ctx, method, path, in, out, nil)
}

// doStatus performs a JSON request. When found is non-nil it is set to
// false for 204 No Content instead of decoding.
func (c *Client) doStatus(ctx context.Context, method, path string, in, out any, found *bool) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding %s %s body: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	contentType := ""
	if in != nil {
		contentType = "application/json"
	}
	resp, err := c.send(ctx, method, path, body, contentType, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if found != nil {
		*found = resp.StatusCode != http.StatusNoContent
		if !*found {
			return nil
		}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// send performs a request with the identity headers set and returns the
// response for a 2xx status. Any other status is decoded into an APIError.
func (c *Client) send(ctx context.Context, method, path string, body io.Reader, contentType, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", accept)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
		req.Header.Set("X-User-Name", c.userName)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	c.logger.Debug("api request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(b, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(b))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	return apiErr
}
