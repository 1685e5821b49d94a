package render

import (
	"fmt"
	"html"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/sitewalk/sitewalk/internal/annotation"
	"github.com/sitewalk/sitewalk/internal/geometry"
)

// SelectedStrokeBoost is added to the stroke width of the selected marker.
const SelectedStrokeBoost = 2.0

// Renderer writes the SVG elements for one marker.
type Renderer func(w *svgWriter, m annotation.Marker, sh shape, st drawStyle)

// renderers holds one entry per marker type.
var renderers = map[annotation.MarkerType]Renderer{
	annotation.TypeAccessPoint: glyph("AP"),
	annotation.TypeCamera:      glyph("C"),
	annotation.TypeElevator:    glyph("E"),
	annotation.TypeIntercom:    glyph("I"),
	annotation.TypeNote:        noteGlyph,
	annotation.TypeStamp:       stamp,
	annotation.TypeText:        textBox,
	annotation.TypeMeasurement: measurement,
	annotation.TypeArrow:       arrow,
	annotation.TypeRectangle:   rect,
	annotation.TypeCircle:      ellipse,
	annotation.TypeCloud:       cloud,
	annotation.TypeCallout:     callout,
	annotation.TypeArea:        polygon,
	annotation.TypePolygon:     polygon,
	annotation.TypePolyline:    polyline,
}

// HasRenderer reports whether t has a renderer entry.
func HasRenderer(t annotation.MarkerType) bool {
	_, ok := renderers[t]
	return ok
}

type drawStyle struct {
	color   string
	fill    string
	opacity float64
	stroke  float64
	dashed  bool
	label   string
}

func styleFor(s Scene, m annotation.Marker, sh shape, selected bool) drawStyle {
	st := drawStyle{
		color:   m.EffectiveColor(),
		fill:    m.EffectiveFillColor(),
		opacity: m.EffectiveOpacity(),
		stroke:  sh.stroke,
	}
	if selected {
		st.stroke += SelectedStrokeBoost
	}
	if s.showLabel(m) {
		st.label = s.labelText(m)
	}
	return st
}

// SVG writes the overlay for the scene as a standalone SVG document of the
// given pixel size.
func SVG(out io.Writer, s Scene, width, height int) error {
	w := &svgWriter{}
	w.printf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, width, height, width, height)
	w.raw("\n")
	for _, m := range Visible(s) {
		drawMarker(w, s, m, false)
	}
	if s.Temp != nil {
		drawMarker(w, s, *s.Temp, true)
	}
	w.raw("</svg>\n")
	_, err := io.WriteString(out, w.String())
	return err
}

// SVGString is SVG into a string.
func SVGString(s Scene, width, height int) string {
	var b strings.Builder
	_ = SVG(&b, s, width, height)
	return b.String()
}

func drawMarker(w *svgWriter, s Scene, m annotation.Marker, temp bool) {
	fn, ok := renderers[m.Type]
	if !ok {
		return
	}
	sh := project(m, s.Transform)
	selected := !temp && s.SelectedID != 0 && m.ID == s.SelectedID
	st := styleFor(s, m, sh, selected)
	st.dashed = temp

	w.printf(`<g class="marker marker-%s" data-marker-id="%d" data-unique-id="%s" opacity="%s"`,
		m.Type, m.ID, html.EscapeString(m.UniqueID), num(st.opacity))
	if sh.rotation != 0 && sh.form != formGlyph {
		c := sh.center()
		w.printf(` transform="rotate(%s %s %s)"`, num(sh.rotation), num(c.X), num(c.Y))
	}
	if selected {
		w.raw(` data-selected="true"`)
	}
	w.raw(">")
	fn(w, m, sh, st)
	if st.label != "" {
		labelAt(w, geometry.Pt(sh.box.Min.X, sh.box.Min.Y-4), st)
	}
	w.raw("</g>\n")
}

// --- Renderers ---

func glyph(letters string) Renderer {
	return func(w *svgWriter, m annotation.Marker, sh shape, st drawStyle) {
		w.printf(`<circle cx="%s" cy="%s" r="%s" fill="%s" stroke="#ffffff" stroke-width="%s"/>`,
			num(sh.anchor.X), num(sh.anchor.Y), num(PointRadius), attr(st.color), num(st.stroke))
		w.printf(`<text x="%s" y="%s" font-size="9" font-family="sans-serif" fill="#ffffff" text-anchor="middle" dominant-baseline="central">%s</text>`,
			num(sh.anchor.X), num(sh.anchor.Y), html.EscapeString(letters))
	}
}

func noteGlyph(w *svgWriter, m annotation.Marker, sh shape, st drawStyle) {
	b := sh.box
	w.printf(`<rect x="%s" y="%s" width="%s" height="%s" rx="2" fill="%s" stroke="%s" stroke-width="%s"/>`,
		num(b.Min.X), num(b.Min.Y), num(b.Width()), num(b.Height()), attr(st.color), "#78350f", num(st.stroke))
}

func stamp(w *svgWriter, m annotation.Marker, sh shape, st drawStyle) {
	text := "STAMP"
	if m.TextContent != nil && *m.TextContent != "" {
		text = *m.TextContent
	}
	width := math.Max(float64(len([]rune(text)))*8+12, 2*PointRadius)
	x, y := sh.anchor.X-width/2, sh.anchor.Y-PointRadius
	w.printf(`<rect x="%s" y="%s" width="%s" height="%s" rx="3" fill="none" stroke="%s" stroke-width="%s"%s/>`,
		num(x), num(y), num(width), num(2*PointRadius), attr(st.color), num(st.stroke), dash(st))
	w.printf(`<text x="%s" y="%s" font-size="11" font-weight="bold" font-family="sans-serif" fill="%s" text-anchor="middle" dominant-baseline="central">%s</text>`,
		num(sh.anchor.X), num(sh.anchor.Y), attr(st.color), html.EscapeString(text))
}

func textBox(w *svgWriter, m annotation.Marker, sh shape, st drawStyle) {
	text := ""
	if m.TextContent != nil {
		text = *m.TextContent
	}
	family := "sans-serif"
	if m.FontFamily != nil && *m.FontFamily != "" {
		family = *m.FontFamily
	}
	w.printf(`<text x="%s" y="%s" font-size="%s" font-family="%s" fill="%s" dominant-baseline="hanging">%s</text>`,
		num(sh.anchor.X), num(sh.anchor.Y), num(sh.box.Height()/1.2), attr(family), attr(st.color), html.EscapeString(text))
}

func measurement(w *svgWriter, m annotation.Marker, sh shape, st drawStyle) {
	line(w, sh.anchor, sh.end, st)
	for _, tick := range sh.endTicks() {
		line(w, tick[0], tick[1], st)
	}
}

func arrow(w *svgWriter, m annotation.Marker, sh shape, st drawStyle) {
	line(w, sh.anchor, sh.end, st)
	if head := sh.arrowHead(); head != nil {
		w.printf(`<polygon points="%s" fill="%s"/>`, points(head), attr(st.color))
	}
}

func rect(w *svgWriter, m annotation.Marker, sh shape, st drawStyle) {
	b := sh.box
	w.printf(`<rect x="%s" y="%s" width="%s" height="%s" fill="%s" stroke="%s" stroke-width="%s"%s/>`,
		num(b.Min.X), num(b.Min.Y), num(b.Width()), num(b.Height()), fill(st), attr(st.color), num(st.stroke), dash(st))
}

func ellipse(w *svgWriter, m annotation.Marker, sh shape, st drawStyle) {
	c := sh.box.Center()
	w.printf(`<ellipse cx="%s" cy="%s" rx="%s" ry="%s" fill="%s" stroke="%s" stroke-width="%s"%s/>`,
		num(c.X), num(c.Y), num(sh.box.Width()/2), num(sh.box.Height()/2), fill(st), attr(st.color), num(st.stroke), dash(st))
}

func cloud(w *svgWriter, m annotation.Marker, sh shape, st drawStyle) {
	centers, r := sh.cloudBumps()
	var d strings.Builder
	for _, c := range centers {
		fmt.Fprintf(&d, "M%s %s a%s %s 0 1 0 %s 0 a%s %s 0 1 0 %s 0 ",
			num(c.X-r), num(c.Y), num(r), num(r), num(2*r), num(r), num(r), num(-2*r))
	}
	w.printf(`<path d="%s" fill="none" stroke="%s" stroke-width="%s"%s/>`,
		strings.TrimSpace(d.String()), attr(st.color), num(st.stroke), dash(st))
}

func callout(w *svgWriter, m annotation.Marker, sh shape, st drawStyle) {
	rect(w, m, sh, st)
	// Leader from the anchor corner outward so the box points at its target.
	tip := sh.anchor.Sub(geometry.Pt(12, 12))
	line(w, sh.anchor, tip, st)
	if m.TextContent != nil && *m.TextContent != "" {
		size := math.Max(8, m.EffectiveFontSize())
		w.printf(`<text x="%s" y="%s" font-size="%s" font-family="sans-serif" fill="%s" dominant-baseline="hanging">%s</text>`,
			num(sh.box.Min.X+4), num(sh.box.Min.Y+4), num(size), attr(st.color), html.EscapeString(*m.TextContent))
	}
}

func polygon(w *svgWriter, m annotation.Marker, sh shape, st drawStyle) {
	w.printf(`<polygon points="%s" fill="%s" stroke="%s" stroke-width="%s"%s/>`,
		points(sh.pts), fill(st), attr(st.color), num(st.stroke), dash(st))
}

func polyline(w *svgWriter, m annotation.Marker, sh shape, st drawStyle) {
	w.printf(`<polyline points="%s" fill="none" stroke="%s" stroke-width="%s"%s/>`,
		points(sh.pts), attr(st.color), num(st.stroke), dash(st))
}

func line(w *svgWriter, a, b geometry.Point, st drawStyle) {
	w.printf(`<line x1="%s" y1="%s" x2="%s" y2="%s" stroke="%s" stroke-width="%s"%s/>`,
		num(a.X), num(a.Y), num(b.X), num(b.Y), attr(st.color), num(st.stroke), dash(st))
}

func labelAt(w *svgWriter, p geometry.Point, st drawStyle) {
	w.printf(`<text class="label" x="%s" y="%s" font-size="11" font-family="sans-serif" fill="#111827" stroke="#ffffff" stroke-width="3" paint-order="stroke">%s</text>`,
		num(p.X), num(p.Y), html.EscapeString(st.label))
}

// --- Output helpers ---

type svgWriter struct {
	strings.Builder
}

func (w *svgWriter) printf(format string, args ...any) {
	fmt.Fprintf(&w.Builder, format, args...)
}

func (w *svgWriter) raw(s string) {
	w.WriteString(s)
}

func num(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

func attr(s string) string {
	return html.EscapeString(s)
}

func fill(st drawStyle) string {
	if st.fill == "" {
		return "none"
	}
	return attr(st.fill)
}

func dash(st drawStyle) string {
	if st.dashed {
		return ` stroke-dasharray="6 4"`
	}
	return ""
}

func points(pts []geometry.Point) string {
	parts := make([]string, len(pts))
	for i, p := range pts {
		parts[i] = num(p.X) + "," + num(p.Y)
	}
	return strings.Join(parts, " ")
}
