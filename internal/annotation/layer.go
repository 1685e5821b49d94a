package annotation

import "time"

// Layer groups markers on a floorplan for visibility and default color.
// SortOrder is unique per floorplan and defines z-order (higher draws later).
type Layer struct {
	ID          int64     `json:"id"`
	FloorplanID string    `json:"floorplan_id"`
	Name        string    `json:"name"`
	Color       string    `json:"color"`
	Visible     bool      `json:"visible"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// Comment is an append-only note on a marker. MarkerUniqueID ties it to the
// whole version chain rather than to one record.
type Comment struct {
	ID             int64     `json:"id"`
	MarkerID       int64     `json:"marker_id"`
	MarkerUniqueID string    `json:"marker_unique_id"`
	Body           string    `json:"body"`
	AuthorID       *string   `json:"author_id,omitempty"`
	AuthorName     *string   `json:"author_name,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitzero"`
}
