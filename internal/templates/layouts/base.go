package layouts

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

// Base wraps body in the site shell: document head, top bar with the
// acting user, and a main content area.
func Base(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="csrf-token" content="%s">
<title>%s · Site Walk</title>
<link rel="stylesheet" href="/static/css/app.css">
</head>
<body>
<header class="topbar"><a href="/" class="brand">Site Walk</a>`,
			templ.EscapeString(GetCSRFToken(ctx)),
			templ.EscapeString(title),
		)
		if err != nil {
			return err
		}
		if name := GetUserName(ctx); name != "" {
			if _, err := fmt.Fprintf(w, `<span class="user">%s</span>`, templ.EscapeString(name)); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, "</header>\n<main>\n"); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err = io.WriteString(w, "\n</main>\n</body>\n</html>\n")
		return err
	})
}
