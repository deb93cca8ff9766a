package overlay

import (
	"image"
	"image/color"
	"testing"

	"github.com/OlegDiz/localflow/pkg/types"
)

func createTestImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{10, 10, 10, 255})
		}
	}
	return img
}

func TestRenderDrawsBoxes(t *testing.T) {
	src := createTestImage(200, 200)
	anns := []types.Annotation{
		{ID: "m", Label: "person", Confidence: 1.0, Source: types.SourceManual,
			BBox: types.BoundingBox{X: 20, Y: 20, W: 100, H: 100}},
		{ID: "a", Label: "helmet", Confidence: 0.9, Source: "qwen3-vl",
			BBox: types.BoundingBox{X: 140, Y: 140, W: 40, H: 40}},
	}

	out := Render(src, anns, 0)

	// Top edge of the manual box is green.
	if got := out.NRGBAAt(60, 20); got != manualColor {
		t.Errorf("manual box edge = %v", got)
	}
	// Model box is gold.
	if got := out.NRGBAAt(160, 140); got != modelColor {
		t.Errorf("model box edge = %v", got)
	}
	// Interior stays untouched.
	if got := out.NRGBAAt(70, 70); got != (color.NRGBA{10, 10, 10, 255}) {
		t.Errorf("interior modified: %v", got)
	}
}

func TestRenderThresholdFiltering(t *testing.T) {
	src := createTestImage(100, 100)
	anns := []types.Annotation{
		{ID: "low", Label: "detail", Confidence: 0.45, Source: "m",
			BBox: types.BoundingBox{X: 10, Y: 10, W: 50, H: 50}},
	}

	out := Render(src, anns, 0.5)
	if got := out.NRGBAAt(30, 10); got != (color.NRGBA{10, 10, 10, 255}) {
		t.Errorf("below-threshold box was drawn: %v", got)
	}

	out = Render(src, anns, 0.4)
	if got := out.NRGBAAt(30, 10); got != modelColor {
		t.Errorf("above-threshold box missing: %v", got)
	}
}

func TestRenderDoesNotModifySource(t *testing.T) {
	src := createTestImage(50, 50)
	anns := []types.Annotation{
		{ID: "m", Label: "x", Confidence: 1.0, Source: types.SourceManual,
			BBox: types.BoundingBox{X: 5, Y: 5, W: 30, H: 30}},
	}

	Render(src, anns, 0)
	if got := src.NRGBAAt(10, 5); got != (color.NRGBA{10, 10, 10, 255}) {
		t.Errorf("source image modified: %v", got)
	}
}

func TestRenderClipsOversizedBox(t *testing.T) {
	src := createTestImage(50, 50)
	anns := []types.Annotation{
		{ID: "m", Label: "x", Confidence: 1.0, Source: types.SourceManual,
			BBox: types.BoundingBox{X: -20, Y: -20, W: 200, H: 200}},
	}

	// Must not panic; edges land on the image border.
	out := Render(src, anns, 0)
	if got := out.NRGBAAt(25, 0); got != manualColor {
		t.Errorf("clipped top edge = %v", got)
	}
}
