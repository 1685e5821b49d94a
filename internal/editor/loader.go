package editor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"math"

	_ "golang.org/x/image/webp"

	"github.com/sitewalk/sitewalk/internal/annotation"
)

// PageLoader produces the background raster of a page at a render scale.
type PageLoader interface {
	LoadPage(ctx context.Context, fp *annotation.Floorplan, page int, renderScale float64) (image.Image, error)
}

// PageLoaderFunc adapts a function to PageLoader.
type PageLoaderFunc func(ctx context.Context, fp *annotation.Floorplan, page int, renderScale float64) (image.Image, error)

// LoadPage calls f.
func (f PageLoaderFunc) LoadPage(ctx context.Context, fp *annotation.Floorplan, page int, renderScale float64) (image.Image, error) {
	return f(ctx, fp, page, renderScale)
}

// MaxRasterSide bounds either side of a generated page raster in pixels.
const MaxRasterSide = 8192

// ContentLoader decodes raster floorplans from their stored content. PDF
// pages have no rasterizer here and come back as a blank sheet of the
// page's native size, so overlays and exports still line up.
type ContentLoader struct{}

// LoadPage implements PageLoader.
func (ContentLoader) LoadPage(ctx context.Context, fp *annotation.Floorplan, page int, renderScale float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page < 1 || page > fp.PageCount {
		return nil, fmt.Errorf("page %d out of range 1..%d", page, fp.PageCount)
	}
	if fp.IsPDF() {
		size := fp.Page(page)
		w := int(math.Ceil(size.Width * renderScale))
		h := int(math.Ceil(size.Height * renderScale))
		if w <= 0 || h <= 0 || w > MaxRasterSide || h > MaxRasterSide {
			return nil, fmt.Errorf("page %d raster size %dx%d not renderable", page, w, h)
		}
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
		return img, nil
	}
	if len(fp.PDFData) == 0 {
		return nil, fmt.Errorf("floorplan %s has no content", fp.ID)
	}
	img, _, err := image.Decode(bytes.NewReader(fp.PDFData))
	if err != nil {
		return nil, fmt.Errorf("decoding floorplan %s: %w", fp.ID, err)
	}
	return img, nil
}
