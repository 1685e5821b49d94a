package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"strconv"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/sitewalk/sitewalk/internal/annotation"
	"github.com/sitewalk/sitewalk/internal/geometry"
)

// Raster composites the scene's overlay onto a page background scaled to
// width x height. A nil background yields a white page.
func Raster(s Scene, background image.Image, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	if background != nil {
		xdraw.CatmullRom.Scale(img, img.Bounds(), background, background.Bounds(), draw.Over, nil)
	}

	r := &rasterizer{img: img, raster: vector.NewRasterizer(width, height)}
	for _, m := range Visible(s) {
		if !HasRenderer(m.Type) {
			continue
		}
		sh := project(m, s.Transform)
		selected := s.SelectedID != 0 && m.ID == s.SelectedID
		st := styleFor(s, m, sh, selected)
		r.marker(m, sh, st)
		if st.label != "" {
			r.text(geometry.Pt(sh.box.Min.X, sh.box.Min.Y-4), st.label, color.Black)
		}
	}
	return img
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encoding png: %w", err)
	}
	return nil
}

type rasterizer struct {
	img    *image.RGBA
	raster *vector.Rasterizer
}

func (r *rasterizer) marker(m annotation.Marker, sh shape, st drawStyle) {
	stroke := parseColor(st.color, st.opacity)
	switch sh.form {
	case formGlyph:
		r.fillPolygon(circlePoints(sh.anchor, PointRadius), stroke)
		r.strokePath(circlePoints(sh.anchor, PointRadius), true, st.stroke, color.White)
	case formText:
		if m.TextContent != nil {
			r.text(geometry.Pt(sh.box.Min.X, sh.box.Max.Y), *m.TextContent, stroke)
		}
	case formBox, formEllipse:
		outline := sh.outline()
		if st.fill != "" {
			r.fillPolygon(outline, parseColor(st.fill, st.opacity))
		}
		r.strokePath(outline, true, st.stroke, stroke)
	case formLine:
		r.strokePath([]geometry.Point{sh.anchor, sh.end}, false, st.stroke, stroke)
		switch m.Type {
		case annotation.TypeMeasurement:
			for _, tick := range sh.endTicks() {
				r.strokePath(tick[:], false, st.stroke, stroke)
			}
		case annotation.TypeArrow:
			if head := sh.arrowHead(); head != nil {
				r.fillPolygon(head, stroke)
			}
		}
	case formPath:
		if sh.closed && st.fill != "" {
			r.fillPolygon(sh.pts, parseColor(st.fill, st.opacity))
		}
		r.strokePath(sh.pts, sh.closed, st.stroke, stroke)
	}
}

func (r *rasterizer) fillPolygon(pts []geometry.Point, c color.Color) {
	if len(pts) < 3 {
		return
	}
	b := r.img.Bounds()
	r.raster.Reset(b.Dx(), b.Dy())
	r.raster.MoveTo(float32(pts[0].X), float32(pts[0].Y))
	for _, p := range pts[1:] {
		r.raster.LineTo(float32(p.X), float32(p.Y))
	}
	r.raster.ClosePath()
	r.raster.Draw(r.img, b, image.NewUniform(c), image.Point{})
}

// strokePath draws each segment as a quad of the given width.
func (r *rasterizer) strokePath(pts []geometry.Point, closed bool, width float64, c color.Color) {
	if len(pts) < 2 {
		return
	}
	b := r.img.Bounds()
	r.raster.Reset(b.Dx(), b.Dy())
	w := math.Max(width/2, 0.5)
	seg := func(a, z geometry.Point) {
		d := z.Sub(a)
		l := math.Hypot(d.X, d.Y)
		if l == 0 {
			return
		}
		n := geometry.Pt(-d.Y/l*w, d.X/l*w)
		p1, p2, p3, p4 := a.Add(n), z.Add(n), z.Sub(n), a.Sub(n)
		r.raster.MoveTo(float32(p1.X), float32(p1.Y))
		r.raster.LineTo(float32(p2.X), float32(p2.Y))
		r.raster.LineTo(float32(p3.X), float32(p3.Y))
		r.raster.LineTo(float32(p4.X), float32(p4.Y))
		r.raster.ClosePath()
	}
	for i := 0; i+1 < len(pts); i++ {
		seg(pts[i], pts[i+1])
	}
	if closed && len(pts) > 2 {
		seg(pts[len(pts)-1], pts[0])
	}
	r.raster.Draw(r.img, b, image.NewUniform(c), image.Point{})
}

func (r *rasterizer) text(at geometry.Point, s string, c color.Color) {
	if s == "" {
		return
	}
	d := &font.Drawer{
		Dst:  r.img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(int(math.Round(at.X)), int(math.Round(at.Y))),
	}
	d.DrawString(s)
}

func circlePoints(c geometry.Point, radius float64) []geometry.Point {
	const n = 32
	pts := make([]geometry.Point, n)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / n
		pts[i] = geometry.Pt(c.X+radius*math.Cos(a), c.Y+radius*math.Sin(a))
	}
	return pts
}

// parseColor reads #rgb or #rrggbb. Anything else is black.
func parseColor(s string, opacity float64) color.NRGBA {
	c := color.NRGBA{A: uint8(math.Round(clamp01(opacity) * 255))}
	s = strings.TrimPrefix(s, "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return c
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return c
	}
	c.R, c.G, c.B = uint8(v>>16), uint8(v>>8), uint8(v)
	return c
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
