package floorplans

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"

	_ "golang.org/x/image/webp"

	"seehuhn.de/go/pdf"
	"seehuhn.de/go/pdf/pagetree"

	"github.com/sitewalk/sitewalk/internal/annotation"
)

// MaxPages bounds the page count accepted for one floorplan document.
const MaxPages = 500

// letter is used for PDF pages without a readable MediaBox.
var letter = annotation.PageSize{Width: 612, Height: 792}

// inspectContent returns the page count and native page sizes of an
// uploaded document. Raster images are a single page sized in pixels.
func inspectContent(data []byte, contentType string) (int, []annotation.PageSize, error) {
	if contentType == annotation.ContentPDF {
		return inspectPDF(data)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("reading image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, nil, fmt.Errorf("image has no pixels")
	}
	return 1, []annotation.PageSize{{Width: float64(cfg.Width), Height: float64(cfg.Height)}}, nil
}

func inspectPDF(data []byte) (int, []annotation.PageSize, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), nil)
	if err != nil {
		return 0, nil, fmt.Errorf("opening pdf: %w", err)
	}
	defer r.Close()

	n, err := pagetree.NumPages(r)
	if err != nil {
		return 0, nil, fmt.Errorf("reading page tree: %w", err)
	}
	if n < 1 {
		return 0, nil, fmt.Errorf("pdf has no pages")
	}
	if n > MaxPages {
		return 0, nil, fmt.Errorf("pdf has %d pages, limit is %d", n, MaxPages)
	}

	sizes := make([]annotation.PageSize, n)
	for i := range n {
		dict, err := pagetree.GetPage(r, i)
		if err != nil {
			return 0, nil, fmt.Errorf("reading page %d: %w", i+1, err)
		}
		sizes[i] = letter
		box, err := pdf.GetRectangle(r, dict["MediaBox"])
		if err != nil || box == nil {
			continue
		}
		size := annotation.PageSize{
			Width:  math.Abs(box.URx - box.LLx),
			Height: math.Abs(box.URy - box.LLy),
		}
		if size.Width == 0 || size.Height == 0 {
			continue
		}
		// Quarter-turn rotations swap the displayed page axes.
		if rot, err := pdf.GetNumber(r, dict["Rotate"]); err == nil && int(rot)%180 != 0 {
			size.Width, size.Height = size.Height, size.Width
		}
		sizes[i] = size
	}
	return n, sizes, nil
}

// sniffContentType identifies an upload by its magic bytes. The declared
// Content-Type of a multipart part is not trusted.
func sniffContentType(data []byte) (string, bool) {
	switch {
	case len(data) >= 5 && string(data[:5]) == "%PDF-":
		return annotation.ContentPDF, true
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return annotation.ContentPNG, true
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return annotation.ContentJPEG, true
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return annotation.ContentWebP, true
	}
	return "", false
}
