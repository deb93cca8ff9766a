// Package overlay rasterizes annotations onto their image for preview
// output. Boxes below a confidence threshold are omitted.
package overlay

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/OlegDiz/localflow/pkg/types"
)

// Box colors by provenance.
var (
	manualColor = color.NRGBA{0, 255, 0, 255}
	modelColor  = color.NRGBA{255, 204, 0, 255}
)

// Render draws every annotation at or above threshold onto a copy of the
// image. Manual boxes are green, model-generated boxes gold. The source
// image is never modified.
func Render(src image.Image, anns []types.Annotation, threshold float64) *image.NRGBA {
	out := imaging.Clone(src)
	w := out.Bounds().Dx()
	h := out.Bounds().Dy()
	stroke := int(math.Max(2, 0.004*float64(min(w, h))))

	for _, ann := range anns {
		if ann.Confidence < threshold {
			continue
		}
		c := modelColor
		if ann.Source == types.SourceManual {
			c = manualColor
		}
		drawBox(out, ann.BBox, c, stroke)
	}
	return out
}

func boxToPixels(b types.BoundingBox, w, h int) (int, int, int, int) {
	x0 := int(clamp(b.X, 0, float64(w)) + 0.5)
	y0 := int(clamp(b.Y, 0, float64(h)) + 0.5)
	x1 := int(clamp(b.X+b.W, 0, float64(w)) + 0.5)
	y1 := int(clamp(b.Y+b.H, 0, float64(h)) + 0.5)
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	return x0, y0, x1, y1
}

func drawBox(img *image.NRGBA, b types.BoundingBox, c color.NRGBA, stroke int) {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	x0, y0, x1, y1 := boxToPixels(b, w, h)
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	for x := max(x0, 0); x < min(x1, img.Bounds().Dx()); x++ {
		img.SetNRGBA(x, y, c)
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	for y := max(y0, 0); y < min(y1, img.Bounds().Dy()); y++ {
		img.SetNRGBA(x, y, c)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
