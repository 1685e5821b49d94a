// Package sanitize cleans user-provided strings before they are stored.
// Marker labels and text are drawn into SVG overlays and raster exports, so
// they are reduced to plain text. Comment bodies keep a small set of inline
// formatting tags.
package sanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// MaxTextLength caps label and text content after sanitizing, in runes.
const MaxTextLength = 500

var (
	strict     *bluemonday.Policy
	comment    *bluemonday.Policy
	policyOnce sync.Once
)

func policies() (*bluemonday.Policy, *bluemonday.Policy) {
	policyOnce.Do(func() {
		strict = bluemonday.StrictPolicy()

		comment = bluemonday.NewPolicy()
		comment.AllowElements("p", "br", "b", "strong", "i", "em", "ul", "ol", "li", "code")
		comment.AllowStandardURLs()
		comment.AllowAttrs("href").OnElements("a")
		comment.RequireNoFollowOnLinks(true)
		comment.AddTargetBlankToFullyQualifiedLinks(true)
	})
	return strict, comment
}

// Text strips all markup from s and returns plain text, trimmed and capped
// at MaxTextLength runes. Entities are decoded so the renderers escape the
// text exactly once.
func Text(s string) string {
	if s == "" {
		return ""
	}
	p, _ := policies()
	out := strings.TrimSpace(html.UnescapeString(p.Sanitize(s)))
	if r := []rune(out); len(r) > MaxTextLength {
		out = string(r[:MaxTextLength])
	}
	return out
}

// TextPtr applies Text to an optional field. Empty results become nil.
func TextPtr(s *string) *string {
	if s == nil {
		return nil
	}
	out := Text(*s)
	if out == "" {
		return nil
	}
	return &out
}

// Comment sanitizes a comment body, keeping basic inline formatting and
// safe links.
func Comment(s string) string {
	if s == "" {
		return ""
	}
	_, p := policies()
	return strings.TrimSpace(p.Sanitize(s))
}
