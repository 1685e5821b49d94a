package annotation

import "time"

// Content types accepted for floorplans.
const (
	ContentPDF  = "application/pdf"
	ContentPNG  = "image/png"
	ContentJPEG = "image/jpeg"
	ContentWebP = "image/webp"
)

// PageSize is the native size of a page in PDF points. Raster floorplans
// use one point per pixel.
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Floorplan is an uploaded page-bearing document belonging to a project.
// Content is immutable after upload; only Name may change.
type Floorplan struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	Name        string     `json:"name"`
	ContentType string     `json:"content_type"`
	PDFData     []byte     `json:"pdf_data,omitempty"`
	PageCount   int        `json:"page_count"`
	Pages       []PageSize `json:"pages,omitempty"`
	CreatedBy   *string    `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at,omitzero"`
	UpdatedAt   time.Time  `json:"updated_at,omitzero"`
}

// Page returns the size of page n (1-based), falling back to US Letter.
func (f *Floorplan) Page(n int) PageSize {
	if n >= 1 && n <= len(f.Pages) {
		return f.Pages[n-1]
	}
	return PageSize{Width: 612, Height: 792}
}

// IsPDF reports whether the content is a PDF document.
func (f *Floorplan) IsPDF() bool {
	return f.ContentType == ContentPDF
}

// ChangeKind names what a ChangeEvent reports.
type ChangeKind string

const (
	ChangeMarkers     ChangeKind = "markers_changed"
	ChangeCalibration ChangeKind = "calibration_changed"
	ChangeLayers      ChangeKind = "layers_changed"
)

// ChangeEvent tells viewers of a floorplan that cached data for a page is
// stale. Page 0 means every page.
type ChangeEvent struct {
	Kind        ChangeKind `json:"kind"`
	FloorplanID string     `json:"floorplan_id"`
	Page        int        `json:"page"`
	UniqueID    string     `json:"unique_id,omitempty"`
}
