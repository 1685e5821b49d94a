// Package pages holds full-page components that belong to no plugin.
package pages

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/a-h/templ"

	"github.com/sitewalk/sitewalk/internal/templates/layouts"
)

// Landing is the root page.
func Landing() templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<section class="landing">
<h1>Site Walk</h1>
<p>Open a floorplan from your project to annotate equipment, measurements and notes.</p>
</section>`)
		return err
	})
	return layouts.Base("Home", body)
}

// ErrorPage renders a full-page error with the status code and a
// user-safe message.
func ErrorPage(code int, message string) templ.Component {
	title := http.StatusText(code)
	if title == "" {
		title = "Error"
	}
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<section class="error-page">
<h1>%d</h1>
<h2>%s</h2>
<p>%s</p>
<a href="/">Back to start</a>
</section>`, code, templ.EscapeString(title), templ.EscapeString(message))
		return err
	})
	return layouts.Base(title, body)
}
