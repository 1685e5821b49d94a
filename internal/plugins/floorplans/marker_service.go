package floorplans

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sitewalk/sitewalk/internal/annotation"
	"github.com/sitewalk/sitewalk/internal/apperror"
	"github.com/sitewalk/sitewalk/internal/sanitize"
)

// MarkerService defines business logic for versioned markers and their
// comments.
type MarkerService interface {
	ListMarkers(ctx context.Context, floorplanID string, page int) ([]annotation.Marker, error)
	CreateMarker(ctx context.Context, floorplanID string, m annotation.Marker, actor Actor) (*annotation.Marker, error)
	UpdateMarker(ctx context.Context, floorplanID string, id int64, ch annotation.Changes, actor Actor) (*annotation.Marker, error)
	DeleteMarker(ctx context.Context, floorplanID string, id int64) error
	DuplicateMarker(ctx context.Context, floorplanID string, m annotation.Marker, actor Actor) (*annotation.Marker, error)
	History(ctx context.Context, floorplanID string, id int64) ([]annotation.Marker, error)

	ListComments(ctx context.Context, floorplanID string, markerID int64) ([]annotation.Comment, error)
	AddComment(ctx context.Context, floorplanID string, markerID int64, input CommentInput, actor Actor) (*annotation.Comment, error)
}

// markerService is the default MarkerService implementation.
type markerService struct {
	repo       MarkerRepository
	floorplans FloorplanRepository
	cache      MarkerCache
	events     EventBus
}

// NewMarkerService creates a MarkerService.
func NewMarkerService(repo MarkerRepository, floorplans FloorplanRepository, cache MarkerCache, events EventBus) MarkerService {
	return &markerService{repo: repo, floorplans: floorplans, cache: cache, events: events}
}

func (s *markerService) floorplan(ctx context.Context, id string) (*annotation.Floorplan, error) {
	fp, err := s.floorplans.GetFloorplan(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get floorplan: %w", err)
	}
	if fp == nil {
		return nil, apperror.NewNotFound("floorplan not found")
	}
	return fp, nil
}

// requireMarker fetches a marker record and verifies it belongs to the
// floorplan in the URL. Cross-floorplan IDs are reported as not found.
func (s *markerService) requireMarker(ctx context.Context, floorplanID string, id int64) (*StoredMarker, error) {
	sm, err := s.repo.GetMarker(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get marker: %w", err)
	}
	if sm == nil || sm.FloorplanID != floorplanID {
		return nil, apperror.NewNotFound("marker not found")
	}
	return sm, nil
}

// checkLayer verifies an assigned layer belongs to the floorplan.
func (s *markerService) checkLayer(ctx context.Context, floorplanID string, layerID *int64) error {
	if layerID == nil {
		return nil
	}
	l, err := s.floorplans.GetLayer(ctx, *layerID)
	if err != nil {
		return fmt.Errorf("get layer: %w", err)
	}
	if l == nil || l.FloorplanID != floorplanID {
		return apperror.NewValidation("layer does not belong to this floorplan")
	}
	return nil
}

// clean sanitizes the user-provided text fields of m.
func clean(m *annotation.Marker) {
	m.Label = sanitize.TextPtr(m.Label)
	m.TextContent = sanitize.TextPtr(m.TextContent)
	m.FontFamily = sanitize.TextPtr(m.FontFamily)
	m.EquipmentType = sanitize.TextPtr(m.EquipmentType)
	m.EquipmentID = sanitize.TextPtr(m.EquipmentID)
	if m.FillColor != nil && !hexColor.MatchString(*m.FillColor) {
		m.FillColor = nil
	}
	if m.Color != "" && !hexColor.MatchString(m.Color) {
		m.Color = ""
	}
}

// changed invalidates cached lists and notifies viewers of the pages a
// mutation touched.
func (s *markerService) changed(ctx context.Context, floorplanID, uniqueID string, pages ...int) {
	seen := map[int]bool{}
	for _, p := range pages {
		if seen[p] {
			continue
		}
		seen[p] = true
		s.cache.Invalidate(ctx, floorplanID, p)
		s.events.Publish(ctx, annotation.ChangeEvent{
			Kind:        annotation.ChangeMarkers,
			FloorplanID: floorplanID,
			Page:        p,
			UniqueID:    uniqueID,
		})
	}
}

// ListMarkers returns the current markers of a page, served from the cache
// when possible.
func (s *markerService) ListMarkers(ctx context.Context, floorplanID string, page int) ([]annotation.Marker, error) {
	fp, err := s.floorplan(ctx, floorplanID)
	if err != nil {
		return nil, err
	}
	if page < 1 || page > fp.PageCount {
		return nil, domainError(fmt.Errorf("%w: page %d not in [1, %d]", annotation.ErrPageOutOfRange, page, fp.PageCount))
	}
	markers, gen, ok := s.cache.Get(ctx, floorplanID, page)
	if ok {
		return markers, nil
	}
	markers, err = s.repo.ListMarkers(ctx, floorplanID, page)
	if err != nil {
		return nil, fmt.Errorf("list markers: %w", err)
	}
	if markers == nil {
		markers = []annotation.Marker{}
	}
	s.cache.Set(ctx, floorplanID, page, gen, markers)
	return markers, nil
}

func uniqueIDInUse() error {
	return apperror.NewConflict("unique_id already belongs to another marker; edit that marker instead")
}

// requireUnusedUniqueID rejects a client-chosen unique ID that already
// names an annotation chain.
func (s *markerService) requireUnusedUniqueID(ctx context.Context, uniqueID string) error {
	existing, err := s.repo.History(ctx, uniqueID)
	if err != nil {
		return fmt.Errorf("check unique id: %w", err)
	}
	if len(existing) > 0 {
		return uniqueIDInUse()
	}
	return nil
}

// CreateMarker stores the first version of a new annotation.
func (s *markerService) CreateMarker(ctx context.Context, floorplanID string, m annotation.Marker, actor Actor) (*annotation.Marker, error) {
	return s.insert(ctx, floorplanID, m, actor, "marker created")
}

// DuplicateMarker stores a copy as a new annotation with its own chain.
func (s *markerService) DuplicateMarker(ctx context.Context, floorplanID string, m annotation.Marker, actor Actor) (*annotation.Marker, error) {
	// A copy never continues the source chain.
	m.UniqueID = ""
	return s.insert(ctx, floorplanID, m, actor, "marker duplicated")
}

func (s *markerService) insert(ctx context.Context, floorplanID string, m annotation.Marker, actor Actor, msg string) (*annotation.Marker, error) {
	fp, err := s.floorplan(ctx, floorplanID)
	if err != nil {
		return nil, err
	}

	m.ID = 0
	m.FloorplanID = floorplanID
	m.Version = 1
	m.ParentID = nil
	if _, err := uuid.Parse(m.UniqueID); err != nil {
		m.UniqueID = annotation.NewUniqueID()
	} else if err := s.requireUnusedUniqueID(ctx, m.UniqueID); err != nil {
		return nil, err
	}
	if m.AuthorID == nil {
		m.AuthorID = actor.idPtr()
	}
	if m.AuthorName == nil {
		m.AuthorName = actor.namePtr()
	}
	clean(&m)

	if err := annotation.Validate(m, fp.PageCount); err != nil {
		return nil, domainError(err)
	}
	if err := s.checkLayer(ctx, floorplanID, m.LayerID); err != nil {
		return nil, err
	}
	if err := s.repo.CreateMarker(ctx, &m); err != nil {
		if errors.Is(err, ErrDuplicateUniqueID) {
			return nil, uniqueIDInUse()
		}
		return nil, fmt.Errorf("create marker: %w", err)
	}

	slog.Info(msg,
		slog.String("floorplan_id", floorplanID),
		slog.Int64("id", m.ID),
		slog.String("unique_id", m.UniqueID),
		slog.String("type", string(m.Type)),
		slog.Int("page", m.Page),
	)
	s.changed(ctx, floorplanID, m.UniqueID, m.Page)
	return &m, nil
}

// UpdateMarker records an edit as the next version of the annotation. Only
// the current version can be edited.
func (s *markerService) UpdateMarker(ctx context.Context, floorplanID string, id int64, ch annotation.Changes, actor Actor) (*annotation.Marker, error) {
	fp, err := s.floorplan(ctx, floorplanID)
	if err != nil {
		return nil, err
	}
	prev, err := s.requireMarker(ctx, floorplanID, id)
	if err != nil {
		return nil, err
	}
	if prev.Superseded {
		return nil, apperror.NewConflict("marker has been superseded; reload and edit the current version")
	}

	// The editor of a version is its author; anonymous edits keep the
	// previous author.
	ch.AuthorID, ch.AuthorName = actor.idPtr(), actor.namePtr()
	next, err := annotation.CreateVersion(prev.Marker, ch)
	if err != nil {
		return nil, domainError(err)
	}
	clean(&next)

	if err := annotation.Validate(next, fp.PageCount); err != nil {
		return nil, domainError(err)
	}
	if err := s.checkLayer(ctx, floorplanID, next.LayerID); err != nil {
		return nil, err
	}
	if err := s.repo.CreateVersion(ctx, prev.ID, &next); err != nil {
		if errors.Is(err, ErrSuperseded) {
			return nil, apperror.NewConflict("marker has been superseded; reload and edit the current version")
		}
		return nil, fmt.Errorf("update marker: %w", err)
	}

	slog.Info("marker versioned",
		slog.String("floorplan_id", floorplanID),
		slog.String("unique_id", next.UniqueID),
		slog.Int64("parent_id", prev.ID),
		slog.Int64("id", next.ID),
		slog.Int("version", next.Version),
	)
	s.changed(ctx, floorplanID, next.UniqueID, prev.Page, next.Page)
	return &next, nil
}

// DeleteMarker removes the annotation a marker record belongs to, with its
// whole history and comments.
func (s *markerService) DeleteMarker(ctx context.Context, floorplanID string, id int64) error {
	sm, err := s.requireMarker(ctx, floorplanID, id)
	if err != nil {
		return err
	}
	history, err := s.repo.History(ctx, sm.UniqueID)
	if err != nil {
		return fmt.Errorf("load marker history: %w", err)
	}
	if err := s.repo.DeleteChain(ctx, sm.UniqueID); err != nil {
		return fmt.Errorf("delete marker: %w", err)
	}

	slog.Info("marker deleted",
		slog.String("floorplan_id", floorplanID),
		slog.String("unique_id", sm.UniqueID),
		slog.Int("versions", len(history)),
	)
	pages := []int{sm.Page}
	for _, m := range history {
		pages = append(pages, m.Page)
	}
	s.changed(ctx, floorplanID, sm.UniqueID, pages...)
	return nil
}

// History returns every version of the annotation a record belongs to.
func (s *markerService) History(ctx context.Context, floorplanID string, id int64) ([]annotation.Marker, error) {
	sm, err := s.requireMarker(ctx, floorplanID, id)
	if err != nil {
		return nil, err
	}
	history, err := s.repo.History(ctx, sm.UniqueID)
	if err != nil {
		return nil, fmt.Errorf("marker history: %w", err)
	}
	return history, nil
}

// ListComments returns comments across the whole version chain.
func (s *markerService) ListComments(ctx context.Context, floorplanID string, markerID int64) ([]annotation.Comment, error) {
	sm, err := s.requireMarker(ctx, floorplanID, markerID)
	if err != nil {
		return nil, err
	}
	comments, err := s.repo.ListComments(ctx, sm.UniqueID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	if comments == nil {
		comments = []annotation.Comment{}
	}
	return comments, nil
}

// AddComment appends a sanitized comment to a marker record.
func (s *markerService) AddComment(ctx context.Context, floorplanID string, markerID int64, input CommentInput, actor Actor) (*annotation.Comment, error) {
	sm, err := s.requireMarker(ctx, floorplanID, markerID)
	if err != nil {
		return nil, err
	}
	body := sanitize.Comment(input.Body)
	if body == "" {
		return nil, apperror.NewValidation("comment body is required")
	}
	c := &annotation.Comment{
		MarkerID:       sm.ID,
		MarkerUniqueID: sm.UniqueID,
		Body:           body,
		AuthorID:       actor.idPtr(),
		AuthorName:     actor.namePtr(),
	}
	if err := s.repo.CreateComment(ctx, c); err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	return c, nil
}
