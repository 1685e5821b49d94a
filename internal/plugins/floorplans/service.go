package floorplans

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/sitewalk/sitewalk/internal/annotation"
	"github.com/sitewalk/sitewalk/internal/apperror"
	"github.com/sitewalk/sitewalk/internal/calibration"
	"github.com/sitewalk/sitewalk/internal/sanitize"
)

// DefaultLayerColor is used for layers created without a color.
const DefaultLayerColor = "#2563eb"

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// domainError maps core validation sentinels to 422 AppErrors whose Type
// names the violated rule. Other errors pass through unchanged.
func domainError(err error) error {
	switch {
	case errors.Is(err, annotation.ErrMissingGeometry):
		return apperror.NewDomainValidation("missing_geometry", err)
	case errors.Is(err, annotation.ErrPageOutOfRange):
		return apperror.NewDomainValidation("page_out_of_range", err)
	case errors.Is(err, annotation.ErrInvalidOpacity):
		return apperror.NewDomainValidation("invalid_opacity", err)
	case errors.Is(err, annotation.ErrTypeMismatch):
		return apperror.NewDomainValidation("type_mismatch", err)
	case errors.Is(err, annotation.ErrUnknownType):
		return apperror.NewDomainValidation("unknown_type", err)
	case errors.Is(err, calibration.ErrInvalidCalibration):
		return apperror.NewDomainValidation("invalid_calibration", err)
	case errors.Is(err, calibration.ErrUnknownUnit):
		return apperror.NewDomainValidation("unknown_unit", err)
	}
	return err
}

// FloorplanService defines business logic for floorplans, layers and
// calibrations.
type FloorplanService interface {
	Upload(ctx context.Context, input UploadInput) (*annotation.Floorplan, error)
	GetFloorplan(ctx context.Context, id string) (*annotation.Floorplan, error)
	UpdateFloorplan(ctx context.Context, id string, input UpdateFloorplanInput) (*annotation.Floorplan, error)
	DeleteFloorplan(ctx context.Context, id string) error
	ListFloorplans(ctx context.Context, projectID string) ([]annotation.Floorplan, error)

	ListLayers(ctx context.Context, floorplanID string) ([]annotation.Layer, error)
	CreateLayer(ctx context.Context, floorplanID string, input LayerInput) (*annotation.Layer, error)
	UpdateLayer(ctx context.Context, floorplanID string, id int64, input LayerInput) (*annotation.Layer, error)
	DeleteLayer(ctx context.Context, floorplanID string, id int64) error
	ReorderLayers(ctx context.Context, floorplanID string, input ReorderInput) ([]annotation.Layer, error)

	GetCalibration(ctx context.Context, floorplanID string, page int) (*calibration.Calibration, error)
	SaveCalibration(ctx context.Context, floorplanID string, c calibration.Calibration, actor Actor) (*calibration.Calibration, error)
}

// floorplanService is the default FloorplanService implementation.
type floorplanService struct {
	repo    FloorplanRepository
	cache   MarkerCache
	events  EventBus
	maxSize int64
}

// NewFloorplanService creates a FloorplanService. Uploads larger than
// maxSize bytes are refused. cache is the marker list cache shared with the
// MarkerService; layer and floorplan deletes rewrite markers behind it.
func NewFloorplanService(repo FloorplanRepository, cache MarkerCache, events EventBus, maxSize int64) FloorplanService {
	return &floorplanService{repo: repo, cache: cache, events: events, maxSize: maxSize}
}

// invalidateMarkers drops the cached marker lists of every page.
func (s *floorplanService) invalidateMarkers(ctx context.Context, fp *annotation.Floorplan) {
	for page := 1; page <= fp.PageCount; page++ {
		s.cache.Invalidate(ctx, fp.ID, page)
	}
}

// Upload validates an uploaded document, reads its page geometry and stores
// it.
func (s *floorplanService) Upload(ctx context.Context, input UploadInput) (*annotation.Floorplan, error) {
	if input.ProjectID == "" {
		return nil, apperror.NewValidation("project ID is required")
	}
	if len(input.FileBytes) == 0 {
		return nil, apperror.NewBadRequest("no file provided")
	}
	if s.maxSize > 0 && int64(len(input.FileBytes)) > s.maxSize {
		return nil, apperror.NewTooLarge(fmt.Sprintf("file too large; maximum size is %d MB", s.maxSize/(1024*1024)))
	}

	contentType, ok := sniffContentType(input.FileBytes)
	if !ok {
		return nil, apperror.NewBadRequest("unsupported file type; upload a PDF, PNG, JPEG or WebP")
	}
	pageCount, pages, err := inspectContent(input.FileBytes, contentType)
	if err != nil {
		slog.Warn("unreadable floorplan upload",
			slog.String("project_id", input.ProjectID),
			slog.String("content_type", contentType),
			slog.Any("error", err),
		)
		return nil, apperror.NewValidation("the document could not be read")
	}

	name := sanitize.Text(input.Name)
	if name == "" {
		name = sanitize.Text(strings.TrimSuffix(input.OriginalName, filepath.Ext(input.OriginalName)))
	}
	if name == "" {
		return nil, apperror.NewValidation("floorplan name is required")
	}

	fp := &annotation.Floorplan{
		ID:          uuid.NewString(),
		ProjectID:   input.ProjectID,
		Name:        name,
		ContentType: contentType,
		PDFData:     input.FileBytes,
		PageCount:   pageCount,
		Pages:       pages,
		CreatedBy:   Actor{ID: input.CreatedBy}.idPtr(),
	}
	if err := s.repo.CreateFloorplan(ctx, fp); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("saving floorplan: %w", err))
	}

	slog.Info("floorplan uploaded",
		slog.String("id", fp.ID),
		slog.String("project_id", fp.ProjectID),
		slog.String("content_type", contentType),
		slog.Int("pages", pageCount),
		slog.Int("size", len(input.FileBytes)),
	)
	return fp, nil
}

// GetFloorplan returns a floorplan by ID, or a not-found error.
func (s *floorplanService) GetFloorplan(ctx context.Context, id string) (*annotation.Floorplan, error) {
	fp, err := s.repo.GetFloorplan(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get floorplan: %w", err)
	}
	if fp == nil {
		return nil, apperror.NewNotFound("floorplan not found")
	}
	return fp, nil
}

// UpdateFloorplan renames a floorplan.
func (s *floorplanService) UpdateFloorplan(ctx context.Context, id string, input UpdateFloorplanInput) (*annotation.Floorplan, error) {
	fp, err := s.GetFloorplan(ctx, id)
	if err != nil {
		return nil, err
	}
	name := sanitize.Text(input.Name)
	if name == "" {
		return nil, apperror.NewValidation("floorplan name is required")
	}
	fp.Name = name
	if err := s.repo.UpdateFloorplan(ctx, fp); err != nil {
		return nil, fmt.Errorf("update floorplan: %w", err)
	}
	return fp, nil
}

// DeleteFloorplan removes a floorplan with everything drawn on it.
func (s *floorplanService) DeleteFloorplan(ctx context.Context, id string) error {
	fp, err := s.GetFloorplan(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteFloorplan(ctx, id); err != nil {
		return fmt.Errorf("delete floorplan: %w", err)
	}
	s.invalidateMarkers(ctx, fp)
	slog.Info("floorplan deleted", slog.String("id", id))
	return nil
}

// ListFloorplans returns a project's floorplans without content.
func (s *floorplanService) ListFloorplans(ctx context.Context, projectID string) ([]annotation.Floorplan, error) {
	fps, err := s.repo.ListFloorplans(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list floorplans: %w", err)
	}
	return fps, nil
}

// --- Layers ---

// ListLayers returns a floorplan's layers in draw order.
func (s *floorplanService) ListLayers(ctx context.Context, floorplanID string) ([]annotation.Layer, error) {
	if _, err := s.GetFloorplan(ctx, floorplanID); err != nil {
		return nil, err
	}
	layers, err := s.repo.ListLayers(ctx, floorplanID)
	if err != nil {
		return nil, fmt.Errorf("list layers: %w", err)
	}
	return layers, nil
}

func validateLayer(input LayerInput) (name, color string, err error) {
	name = sanitize.Text(input.Name)
	if name == "" {
		return "", "", apperror.NewValidation("layer name is required")
	}
	color = input.Color
	if color == "" {
		color = DefaultLayerColor
	}
	if !hexColor.MatchString(color) {
		return "", "", apperror.NewValidation("layer color must be a hex color like #2563eb")
	}
	return name, color, nil
}

// CreateLayer appends a layer to the floorplan's draw order.
func (s *floorplanService) CreateLayer(ctx context.Context, floorplanID string, input LayerInput) (*annotation.Layer, error) {
	if _, err := s.GetFloorplan(ctx, floorplanID); err != nil {
		return nil, err
	}
	name, color, err := validateLayer(input)
	if err != nil {
		return nil, err
	}
	l := &annotation.Layer{
		FloorplanID: floorplanID,
		Name:        name,
		Color:       color,
		Visible:     input.Visible == nil || *input.Visible,
	}
	if err := s.repo.CreateLayer(ctx, l); err != nil {
		return nil, fmt.Errorf("create layer: %w", err)
	}
	s.events.Publish(ctx, annotation.ChangeEvent{Kind: annotation.ChangeLayers, FloorplanID: floorplanID})
	return l, nil
}

// requireLayer returns a layer that belongs to floorplanID, or not-found.
func (s *floorplanService) requireLayer(ctx context.Context, floorplanID string, id int64) (*annotation.Layer, error) {
	l, err := s.repo.GetLayer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get layer: %w", err)
	}
	if l == nil || l.FloorplanID != floorplanID {
		return nil, apperror.NewNotFound("layer not found")
	}
	return l, nil
}

// UpdateLayer changes a layer's name, color or visibility.
func (s *floorplanService) UpdateLayer(ctx context.Context, floorplanID string, id int64, input LayerInput) (*annotation.Layer, error) {
	l, err := s.requireLayer(ctx, floorplanID, id)
	if err != nil {
		return nil, err
	}
	name, color, err := validateLayer(input)
	if err != nil {
		return nil, err
	}
	l.Name, l.Color = name, color
	if input.Visible != nil {
		l.Visible = *input.Visible
	}
	if err := s.repo.UpdateLayer(ctx, l); err != nil {
		return nil, fmt.Errorf("update layer: %w", err)
	}
	s.events.Publish(ctx, annotation.ChangeEvent{Kind: annotation.ChangeLayers, FloorplanID: floorplanID})
	return l, nil
}

// DeleteLayer removes a layer; its markers stay, unlayered.
func (s *floorplanService) DeleteLayer(ctx context.Context, floorplanID string, id int64) error {
	fp, err := s.GetFloorplan(ctx, floorplanID)
	if err != nil {
		return err
	}
	if _, err := s.requireLayer(ctx, floorplanID, id); err != nil {
		return err
	}
	if err := s.repo.DeleteLayer(ctx, id); err != nil {
		return fmt.Errorf("delete layer: %w", err)
	}
	s.invalidateMarkers(ctx, fp)
	s.events.Publish(ctx, annotation.ChangeEvent{Kind: annotation.ChangeLayers, FloorplanID: floorplanID})
	s.events.Publish(ctx, annotation.ChangeEvent{Kind: annotation.ChangeMarkers, FloorplanID: floorplanID})
	return nil
}

// ReorderLayers sets the draw order. The input must list every layer of
// the floorplan exactly once.
func (s *floorplanService) ReorderLayers(ctx context.Context, floorplanID string, input ReorderInput) ([]annotation.Layer, error) {
	layers, err := s.ListLayers(ctx, floorplanID)
	if err != nil {
		return nil, err
	}
	if len(input.LayerIDs) != len(layers) {
		return nil, apperror.NewValidation("reorder must list every layer exactly once")
	}
	known := make(map[int64]bool, len(layers))
	for _, l := range layers {
		known[l.ID] = true
	}
	for _, id := range input.LayerIDs {
		if !known[id] {
			return nil, apperror.NewValidation("reorder must list every layer exactly once")
		}
		delete(known, id)
	}

	if err := s.repo.ReorderLayers(ctx, floorplanID, input.LayerIDs); err != nil {
		return nil, fmt.Errorf("reorder layers: %w", err)
	}
	s.events.Publish(ctx, annotation.ChangeEvent{Kind: annotation.ChangeLayers, FloorplanID: floorplanID})
	return s.ListLayers(ctx, floorplanID)
}

// --- Calibration ---

// GetCalibration returns the calibration of a page, or nil when the page is
// uncalibrated.
func (s *floorplanService) GetCalibration(ctx context.Context, floorplanID string, page int) (*calibration.Calibration, error) {
	fp, err := s.GetFloorplan(ctx, floorplanID)
	if err != nil {
		return nil, err
	}
	if page < 1 || page > fp.PageCount {
		return nil, domainError(fmt.Errorf("%w: page %d not in [1, %d]", annotation.ErrPageOutOfRange, page, fp.PageCount))
	}
	c, err := s.repo.GetCalibration(ctx, floorplanID, page)
	if err != nil {
		return nil, fmt.Errorf("get calibration: %w", err)
	}
	return c, nil
}

// SaveCalibration validates a reference measurement and stores it as the
// page's calibration, replacing any earlier one.
func (s *floorplanService) SaveCalibration(ctx context.Context, floorplanID string, c calibration.Calibration, actor Actor) (*calibration.Calibration, error) {
	fp, err := s.GetFloorplan(ctx, floorplanID)
	if err != nil {
		return nil, err
	}
	if c.Page < 1 || c.Page > fp.PageCount {
		return nil, domainError(fmt.Errorf("%w: page %d not in [1, %d]", annotation.ErrPageOutOfRange, c.Page, fp.PageCount))
	}
	if err := c.Validate(); err != nil {
		return nil, domainError(err)
	}
	scale, err := calibration.ComputeScaleFactor(c)
	if err != nil {
		return nil, domainError(err)
	}

	c.ID = uuid.NewString()
	c.FloorplanID = floorplanID
	c.ScaleFactor = scale
	c.CreatedBy = actor.idPtr()
	if err := s.repo.UpsertCalibration(ctx, &c); err != nil {
		return nil, fmt.Errorf("save calibration: %w", err)
	}

	slog.Info("calibration saved",
		slog.String("floorplan_id", floorplanID),
		slog.Int("page", c.Page),
		slog.Float64("scale_factor", scale),
		slog.String("unit", c.Unit),
	)
	s.events.Publish(ctx, annotation.ChangeEvent{Kind: annotation.ChangeCalibration, FloorplanID: floorplanID, Page: c.Page})

	stored, err := s.repo.GetCalibration(ctx, floorplanID, c.Page)
	if err != nil {
		return nil, fmt.Errorf("reload calibration: %w", err)
	}
	if stored == nil {
		return &c, nil
	}
	return stored, nil
}
