package floorplans

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/sitewalk/sitewalk/internal/annotation"
)

// ErrSuperseded is returned when a new version is requested for a marker
// record that already has a successor.
var ErrSuperseded = errors.New("marker has been superseded")

// ErrDuplicateUniqueID is returned when a first version reuses the unique ID
// of an existing annotation.
var ErrDuplicateUniqueID = errors.New("marker unique id already in use")

// isDuplicateEntry checks if a MariaDB error is a duplicate key violation.
// Error code 1062 is ER_DUP_ENTRY for unique constraint violations.
func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}

// StoredMarker is a marker record with its storage-only flags.
type StoredMarker struct {
	annotation.Marker
	Superseded bool
}

// MarkerRepository defines persistence for versioned markers and their
// comments.
type MarkerRepository interface {
	CreateMarker(ctx context.Context, m *annotation.Marker) error
	GetMarker(ctx context.Context, id int64) (*StoredMarker, error)
	ListMarkers(ctx context.Context, floorplanID string, page int) ([]annotation.Marker, error)

	// CreateVersion inserts next as the successor of record prevID and flags
	// prevID superseded, atomically. Returns ErrSuperseded if prevID already
	// has a successor.
	CreateVersion(ctx context.Context, prevID int64, next *annotation.Marker) error

	// DeleteChain removes every version of an annotation and its comments.
	DeleteChain(ctx context.Context, uniqueID string) error
	History(ctx context.Context, uniqueID string) ([]annotation.Marker, error)

	CreateComment(ctx context.Context, c *annotation.Comment) error
	ListComments(ctx context.Context, uniqueID string) ([]annotation.Comment, error)
}

// markerRepo is the MariaDB implementation of MarkerRepository.
type markerRepo struct {
	db *sql.DB
}

// NewMarkerRepository creates a new MariaDB-backed marker repository.
func NewMarkerRepository(db *sql.DB) MarkerRepository {
	return &markerRepo{db: db}
}

// markerCols is the column list for marker queries.
const markerCols = `id, unique_id, floorplan_id, page, marker_type, layer_id,
       x, y, end_x, end_y, width, height, rotation, points,
       color, fill_color, opacity, line_width, label, text_content, font_size, font_family,
       version, parent_id, superseded, author_id, author_name,
       equipment_type, equipment_id, created_at, updated_at`

// scanMarker reads a row into a StoredMarker.
func scanMarker(scanner interface{ Scan(...any) error }) (*StoredMarker, error) {
	sm := &StoredMarker{}
	m := &sm.Marker
	var points []byte
	err := scanner.Scan(&m.ID, &m.UniqueID, &m.FloorplanID, &m.Page, &m.Type, &m.LayerID,
		&m.X, &m.Y, &m.EndX, &m.EndY, &m.Width, &m.Height, &m.Rotation, &points,
		&m.Color, &m.FillColor, &m.Opacity, &m.LineWidth, &m.Label, &m.TextContent,
		&m.FontSize, &m.FontFamily,
		&m.Version, &m.ParentID, &sm.Superseded, &m.AuthorID, &m.AuthorName,
		&m.EquipmentType, &m.EquipmentID, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(points) > 0 {
		if err := json.Unmarshal(points, &m.Points); err != nil {
			return nil, fmt.Errorf("decoding points of marker %d: %w", m.ID, err)
		}
	}
	return sm, nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertMarker(ctx context.Context, db execer, m *annotation.Marker) error {
	var points []byte
	if len(m.Points) > 0 {
		var err error
		if points, err = json.Marshal(m.Points); err != nil {
			return fmt.Errorf("encoding points: %w", err)
		}
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO floorplan_markers (unique_id, floorplan_id, page, marker_type, layer_id,
		        x, y, end_x, end_y, width, height, rotation, points,
		        color, fill_color, opacity, line_width, label, text_content, font_size, font_family,
		        version, parent_id, author_id, author_name, equipment_type, equipment_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.UniqueID, m.FloorplanID, m.Page, m.Type, m.LayerID,
		m.X, m.Y, m.EndX, m.EndY, m.Width, m.Height, m.Rotation, points,
		m.Color, m.FillColor, m.Opacity, m.LineWidth, m.Label, m.TextContent, m.FontSize, m.FontFamily,
		m.Version, m.ParentID, m.AuthorID, m.AuthorName, m.EquipmentType, m.EquipmentID,
	)
	if err != nil {
		return err
	}
	m.ID, err = res.LastInsertId()
	return err
}

// CreateMarker inserts the first version of an annotation.
func (r *markerRepo) CreateMarker(ctx context.Context, m *annotation.Marker) error {
	if err := insertMarker(ctx, r.db, m); err != nil {
		if isDuplicateEntry(err) {
			return ErrDuplicateUniqueID
		}
		return err
	}
	return nil
}

// GetMarker returns one marker record by ID, or nil.
func (r *markerRepo) GetMarker(ctx context.Context, id int64) (*StoredMarker, error) {
	return scanMarker(r.db.QueryRowContext(ctx,
		`SELECT `+markerCols+` FROM floorplan_markers WHERE id = ?`, id))
}

// ListMarkers returns the current version of every annotation on a page in
// creation order.
func (r *markerRepo) ListMarkers(ctx context.Context, floorplanID string, page int) ([]annotation.Marker, error) {
	return r.list(ctx,
		`SELECT `+markerCols+` FROM floorplan_markers
		 WHERE floorplan_id = ? AND page = ? AND superseded = FALSE
		 ORDER BY id`, floorplanID, page)
}

// History returns every version of an annotation, oldest first.
func (r *markerRepo) History(ctx context.Context, uniqueID string) ([]annotation.Marker, error) {
	return r.list(ctx,
		`SELECT `+markerCols+` FROM floorplan_markers WHERE unique_id = ? ORDER BY version`,
		uniqueID)
}

func (r *markerRepo) list(ctx context.Context, query string, args ...any) ([]annotation.Marker, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []annotation.Marker
	for rows.Next() {
		sm, err := scanMarker(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sm.Marker)
	}
	return result, rows.Err()
}

// CreateVersion implements MarkerRepository.
func (r *markerRepo) CreateVersion(ctx context.Context, prevID int64, next *annotation.Marker) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var superseded bool
	if err := tx.QueryRowContext(ctx,
		`SELECT superseded FROM floorplan_markers WHERE id = ? FOR UPDATE`, prevID,
	).Scan(&superseded); err != nil {
		return fmt.Errorf("locking marker %d: %w", prevID, err)
	}
	if superseded {
		return ErrSuperseded
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE floorplan_markers SET superseded = TRUE WHERE id = ?`, prevID); err != nil {
		return fmt.Errorf("superseding marker %d: %w", prevID, err)
	}
	if err := insertMarker(ctx, tx, next); err != nil {
		return fmt.Errorf("inserting version %d: %w", next.Version, err)
	}
	return tx.Commit()
}

// DeleteChain implements MarkerRepository.
func (r *markerRepo) DeleteChain(ctx context.Context, uniqueID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM marker_comments WHERE marker_unique_id = ?`, uniqueID); err != nil {
		return fmt.Errorf("deleting comments: %w", err)
	}
	// Newest first so parent links never point at a deleted row.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM floorplan_markers WHERE unique_id = ? ORDER BY version DESC`,
		uniqueID); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Comments ---

// CreateComment appends a comment.
func (r *markerRepo) CreateComment(ctx context.Context, c *annotation.Comment) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO marker_comments (marker_id, marker_unique_id, body, author_id, author_name)
		 VALUES (?, ?, ?, ?, ?)`,
		c.MarkerID, c.MarkerUniqueID, c.Body, c.AuthorID, c.AuthorName)
	if err != nil {
		return err
	}
	c.ID, err = res.LastInsertId()
	return err
}

// ListComments returns the comments of every version of an annotation,
// oldest first.
func (r *markerRepo) ListComments(ctx context.Context, uniqueID string) ([]annotation.Comment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, COALESCE(marker_id, 0), marker_unique_id, body, author_id, author_name, created_at
		 FROM marker_comments WHERE marker_unique_id = ? ORDER BY created_at, id`, uniqueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []annotation.Comment
	for rows.Next() {
		var c annotation.Comment
		if err := rows.Scan(&c.ID, &c.MarkerID, &c.MarkerUniqueID, &c.Body,
			&c.AuthorID, &c.AuthorName, &c.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}
