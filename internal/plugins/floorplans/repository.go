package floorplans

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sitewalk/sitewalk/internal/annotation"
	"github.com/sitewalk/sitewalk/internal/calibration"
)

// FloorplanRepository defines persistence for floorplans, their layers and
// their page calibrations.
type FloorplanRepository interface {
	// Floorplan CRUD.
	CreateFloorplan(ctx context.Context, fp *annotation.Floorplan) error
	GetFloorplan(ctx context.Context, id string) (*annotation.Floorplan, error)
	UpdateFloorplan(ctx context.Context, fp *annotation.Floorplan) error
	DeleteFloorplan(ctx context.Context, id string) error
	ListFloorplans(ctx context.Context, projectID string) ([]annotation.Floorplan, error)

	// Layers.
	CreateLayer(ctx context.Context, l *annotation.Layer) error
	GetLayer(ctx context.Context, id int64) (*annotation.Layer, error)
	UpdateLayer(ctx context.Context, l *annotation.Layer) error
	DeleteLayer(ctx context.Context, id int64) error
	ListLayers(ctx context.Context, floorplanID string) ([]annotation.Layer, error)
	ReorderLayers(ctx context.Context, floorplanID string, ids []int64) error

	// Calibrations.
	GetCalibration(ctx context.Context, floorplanID string, page int) (*calibration.Calibration, error)
	UpsertCalibration(ctx context.Context, c *calibration.Calibration) error
}

// floorplanRepo is the MariaDB implementation of FloorplanRepository.
type floorplanRepo struct {
	db *sql.DB
}

// NewFloorplanRepository creates a new MariaDB-backed floorplan repository.
func NewFloorplanRepository(db *sql.DB) FloorplanRepository {
	return &floorplanRepo{db: db}
}

// floorplanCols excludes pdf_data; GetFloorplan selects it separately.
const floorplanCols = `id, project_id, name, content_type, page_count,
       page_sizes, created_by, created_at, updated_at`

// scanFloorplan reads a row into a Floorplan. Extra destinations are
// appended after the fixed columns.
func scanFloorplan(scanner interface{ Scan(...any) error }, extra ...any) (*annotation.Floorplan, error) {
	fp := &annotation.Floorplan{}
	var sizes []byte
	dest := append([]any{&fp.ID, &fp.ProjectID, &fp.Name, &fp.ContentType, &fp.PageCount,
		&sizes, &fp.CreatedBy, &fp.CreatedAt, &fp.UpdatedAt}, extra...)
	err := scanner.Scan(dest...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(sizes) > 0 {
		if err := json.Unmarshal(sizes, &fp.Pages); err != nil {
			return nil, fmt.Errorf("decoding page sizes of %s: %w", fp.ID, err)
		}
	}
	return fp, nil
}

// CreateFloorplan inserts a floorplan with its content.
func (r *floorplanRepo) CreateFloorplan(ctx context.Context, fp *annotation.Floorplan) error {
	sizes, err := json.Marshal(fp.Pages)
	if err != nil {
		return fmt.Errorf("encoding page sizes: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO floorplans (id, project_id, name, content_type, pdf_data,
		        page_count, page_sizes, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		fp.ID, fp.ProjectID, fp.Name, fp.ContentType, fp.PDFData,
		fp.PageCount, sizes, fp.CreatedBy,
	)
	return err
}

// GetFloorplan returns a floorplan including its content, or nil.
func (r *floorplanRepo) GetFloorplan(ctx context.Context, id string) (*annotation.Floorplan, error) {
	var data []byte
	fp, err := scanFloorplan(r.db.QueryRowContext(ctx,
		`SELECT `+floorplanCols+`, pdf_data FROM floorplans WHERE id = ?`, id), &data)
	if fp != nil {
		fp.PDFData = data
	}
	return fp, err
}

// UpdateFloorplan renames a floorplan.
func (r *floorplanRepo) UpdateFloorplan(ctx context.Context, fp *annotation.Floorplan) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE floorplans SET name = ? WHERE id = ?`, fp.Name, fp.ID)
	return err
}

// DeleteFloorplan removes a floorplan. Layers, calibrations and markers are
// cascaded by FK; comments are removed with their markers' chains.
func (r *floorplanRepo) DeleteFloorplan(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE c FROM marker_comments c
		 JOIN floorplan_markers m ON m.unique_id = c.marker_unique_id
		 WHERE m.floorplan_id = ?`, id); err != nil {
		return fmt.Errorf("deleting comments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM floorplans WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// ListFloorplans returns a project's floorplans without content, by name.
func (r *floorplanRepo) ListFloorplans(ctx context.Context, projectID string) ([]annotation.Floorplan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+floorplanCols+` FROM floorplans WHERE project_id = ? ORDER BY name`,
		projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []annotation.Floorplan
	for rows.Next() {
		fp, err := scanFloorplan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *fp)
	}
	return result, rows.Err()
}

// --- Layers ---

const layerCols = `id, floorplan_id, name, color, visible, sort_order, created_at, updated_at`

func scanLayer(scanner interface{ Scan(...any) error }) (*annotation.Layer, error) {
	l := &annotation.Layer{}
	err := scanner.Scan(&l.ID, &l.FloorplanID, &l.Name, &l.Color, &l.Visible,
		&l.SortOrder, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return l, err
}

// CreateLayer appends a layer at the end of the floorplan's draw order.
func (r *floorplanRepo) CreateLayer(ctx context.Context, l *annotation.Layer) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sort_order) + 1, 0) FROM floorplan_layers
		 WHERE floorplan_id = ? FOR UPDATE`, l.FloorplanID).Scan(&next); err != nil {
		return fmt.Errorf("reading next sort order: %w", err)
	}
	l.SortOrder = next

	res, err := tx.ExecContext(ctx,
		`INSERT INTO floorplan_layers (floorplan_id, name, color, visible, sort_order)
		 VALUES (?, ?, ?, ?, ?)`,
		l.FloorplanID, l.Name, l.Color, l.Visible, l.SortOrder)
	if err != nil {
		return err
	}
	if l.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	return tx.Commit()
}

// GetLayer returns a layer by ID, or nil.
func (r *floorplanRepo) GetLayer(ctx context.Context, id int64) (*annotation.Layer, error) {
	return scanLayer(r.db.QueryRowContext(ctx,
		`SELECT `+layerCols+` FROM floorplan_layers WHERE id = ?`, id))
}

// UpdateLayer changes name, color and visibility. Order changes go through
// ReorderLayers.
func (r *floorplanRepo) UpdateLayer(ctx context.Context, l *annotation.Layer) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE floorplan_layers SET name = ?, color = ?, visible = ? WHERE id = ?`,
		l.Name, l.Color, l.Visible, l.ID)
	return err
}

// DeleteLayer removes a layer. Its markers fall back to no layer (FK SET NULL).
func (r *floorplanRepo) DeleteLayer(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM floorplan_layers WHERE id = ?`, id)
	return err
}

// ListLayers returns a floorplan's layers in draw order.
func (r *floorplanRepo) ListLayers(ctx context.Context, floorplanID string) ([]annotation.Layer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+layerCols+` FROM floorplan_layers WHERE floorplan_id = ? ORDER BY sort_order`,
		floorplanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []annotation.Layer
	for rows.Next() {
		l, err := scanLayer(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *l)
	}
	return result, rows.Err()
}

// ReorderLayers assigns sort orders 0..n-1 following ids. The orders are
// first moved to negative values so the per-floorplan unique index never
// sees a transient duplicate.
func (r *floorplanRepo) ReorderLayers(ctx context.Context, floorplanID string, ids []int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE floorplan_layers SET sort_order = -1 - sort_order WHERE floorplan_id = ?`,
		floorplanID); err != nil {
		return fmt.Errorf("parking sort orders: %w", err)
	}
	for i, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`UPDATE floorplan_layers SET sort_order = ? WHERE id = ? AND floorplan_id = ?`,
			i, id, floorplanID); err != nil {
			return fmt.Errorf("ordering layer %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// --- Calibrations ---

const calibrationCols = `id, floorplan_id, page, start_x, start_y, end_x, end_y,
       real_world_distance, unit, scale_factor, created_by, created_at, updated_at`

// GetCalibration returns the calibration of a page, or nil.
func (r *floorplanRepo) GetCalibration(ctx context.Context, floorplanID string, page int) (*calibration.Calibration, error) {
	c := &calibration.Calibration{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+calibrationCols+` FROM floorplan_calibrations
		 WHERE floorplan_id = ? AND page = ?`, floorplanID, page,
	).Scan(&c.ID, &c.FloorplanID, &c.Page, &c.Start.X, &c.Start.Y, &c.End.X, &c.End.Y,
		&c.RealWorldDistance, &c.Unit, &c.ScaleFactor, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// UpsertCalibration creates or replaces the calibration of c's page. The
// stored row keeps its original ID on replace.
func (r *floorplanRepo) UpsertCalibration(ctx context.Context, c *calibration.Calibration) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO floorplan_calibrations (id, floorplan_id, page, start_x, start_y,
		        end_x, end_y, real_world_distance, unit, scale_factor, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE start_x = VALUES(start_x), start_y = VALUES(start_y),
		        end_x = VALUES(end_x), end_y = VALUES(end_y),
		        real_world_distance = VALUES(real_world_distance), unit = VALUES(unit),
		        scale_factor = VALUES(scale_factor), created_by = VALUES(created_by)`,
		c.ID, c.FloorplanID, c.Page, c.Start.X, c.Start.Y, c.End.X, c.End.Y,
		c.RealWorldDistance, c.Unit, c.ScaleFactor, c.CreatedBy,
	)
	return err
}
