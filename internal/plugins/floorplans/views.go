package floorplans

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/a-h/templ"

	"github.com/sitewalk/sitewalk/internal/calibration"
	"github.com/sitewalk/sitewalk/internal/templates/layouts"
)

// ViewPage renders the read-only floorplan viewer: page navigation, the
// page raster with the marker overlay on top, and a marker table.
func ViewPage(data ViewData) templ.Component {
	title := data.Floorplan.Name
	return layouts.Base(title, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		ew := &errWriter{w: w}
		fpPath := "/floorplans/" + url.PathEscape(data.Floorplan.ID)

		ew.printf(`<section class="floorplan-viewer" data-floorplan-id="%s" data-page="%d" data-events-url="%s">`,
			templ.EscapeString(data.Floorplan.ID), data.Page, templ.EscapeString("/api/v1"+fpPath+"/events"))
		ew.printf(`<h1>%s</h1>`, templ.EscapeString(title))

		ew.printf(`<nav class="pager">`)
		if data.HasPrev() {
			ew.printf(`<a href="%s/view?page=%d" rel="prev">Previous</a>`, fpPath, data.Page-1)
		}
		ew.printf(`<span>Page %d of %d</span>`, data.Page, data.Floorplan.PageCount)
		if data.HasNext() {
			ew.printf(`<a href="%s/view?page=%d" rel="next">Next</a>`, fpPath, data.Page+1)
		}
		ew.printf(`<a href="%s/export.png?page=%d" download>Export PNG</a></nav>`, fpPath, data.Page)

		ew.printf(`<p class="scale">%s</p>`, templ.EscapeString(scaleText(data.Calibration)))

		ew.printf(`<div class="sheet" style="width:%dpx;height:%dpx">`, data.Width, data.Height)
		ew.printf(`<img class="page" src="%s/export.png?page=%d&amp;overlay=false" width="%d" height="%d" alt="">`,
			fpPath, data.Page, data.Width, data.Height)
		// Overlay is produced by the SVG renderer, which escapes all text.
		ew.printf(`<div class="overlay">%s</div>`, data.Overlay)
		ew.printf(`</div>`)

		writeMarkerTable(ew, data)
		ew.printf(`</section>`)
		return ew.err
	}))
}

func writeMarkerTable(ew *errWriter, data ViewData) {
	if len(data.Markers) == 0 {
		ew.printf(`<p class="empty">No annotations on this page.</p>`)
		return
	}
	layerNames := make(map[int64]string, len(data.Layers))
	for _, l := range data.Layers {
		layerNames[l.ID] = l.Name
	}

	ew.printf(`<table class="markers"><thead><tr><th>Type</th><th>Label</th><th>Layer</th><th>Version</th><th>Author</th></tr></thead><tbody>`)
	for _, m := range data.Markers {
		layer := ""
		if m.LayerID != nil {
			layer = layerNames[*m.LayerID]
		}
		author := ""
		if m.AuthorName != nil {
			author = *m.AuthorName
		}
		ew.printf(`<tr data-marker-id="%d"><td>%s</td><td>%s</td><td>%s</td><td>%d</td><td>%s</td></tr>`,
			m.ID,
			templ.EscapeString(string(m.Type)),
			templ.EscapeString(m.DisplayLabel()),
			templ.EscapeString(layer),
			m.Version,
			templ.EscapeString(author),
		)
	}
	ew.printf(`</tbody></table>`)
}

func scaleText(c *calibration.Calibration) string {
	if c == nil {
		return "Not calibrated"
	}
	return "Scale: 1 pt = " + strconv.FormatFloat(c.ScaleFactor, 'g', 4, 64) + " " + c.Unit
}

// errWriter keeps the first write error so components can write freely
// and check once.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
