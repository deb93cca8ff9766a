// Package geometry provides the pure rectangle math behind annotation
// editing and export: corner-spanning box construction, clipping,
// hit-testing, screen/image coordinate conversion, and the center-form
// normalization used by detection-training label formats.
package geometry

import (
	"github.com/OlegDiz/localflow/pkg/types"
)

// MinBoxSize is the minimum committed box side length in pixels. Boxes with
// a width or height below this are rejected at creation time.
const MinBoxSize = 4.0

// Clamp ensures a value is within the given bounds.
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// FromCorners returns the axis-aligned box spanning two arbitrary points:
// x = min, y = min, w = |dx|, h = |dy|.
func FromCorners(ax, ay, bx, by float64) types.BoundingBox {
	if bx < ax {
		ax, bx = bx, ax
	}
	if by < ay {
		ay, by = by, ay
	}
	return types.BoundingBox{X: ax, Y: ay, W: bx - ax, H: by - ay}
}

// IsDegenerate reports whether either side of the box is below min.
func IsDegenerate(b types.BoundingBox, min float64) bool {
	return b.W < min || b.H < min
}

// ClipToImage clips a box to the [0,width]x[0,height] pixel bounds of its
// host image. A box entirely outside the bounds collapses to zero size.
func ClipToImage(b types.BoundingBox, width, height float64) types.BoundingBox {
	x0 := Clamp(b.X, 0, width)
	y0 := Clamp(b.Y, 0, height)
	x1 := Clamp(b.X+b.W, 0, width)
	y1 := Clamp(b.Y+b.H, 0, height)
	return types.BoundingBox{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Contains reports whether the point (x, y) lies inside the box, edges
// included.
func Contains(b types.BoundingBox, x, y float64) bool {
	return x >= b.X && x <= b.X+b.W && y >= b.Y && y <= b.Y+b.H
}

// HitIndex returns the index of the topmost annotation under (x, y), where
// topmost follows rendering order: the last-inserted annotation wins.
// It returns -1 when no annotation contains the point.
func HitIndex(anns []types.Annotation, x, y float64) int {
	for i := len(anns) - 1; i >= 0; i-- {
		if Contains(anns[i].BBox, x, y) {
			return i
		}
	}
	return -1
}

// Transform maps screen coordinates to image-pixel coordinates and back.
// Screen = Image*Scale + Offset.
type Transform struct {
	Scale   float64
	OffsetX float64
	OffsetY float64
}

// FitTransform computes the contain-fit transform for an image of the given
// natural size rendered centered inside a viewport.
func FitTransform(imgW, imgH, viewW, viewH float64) Transform {
	if imgW <= 0 || imgH <= 0 || viewW <= 0 || viewH <= 0 {
		return Transform{Scale: 1}
	}
	scale := viewW / imgW
	if s := viewH / imgH; s < scale {
		scale = s
	}
	return Transform{
		Scale:   scale,
		OffsetX: (viewW - imgW*scale) / 2,
		OffsetY: (viewH - imgH*scale) / 2,
	}
}

// ToImage converts a screen-space point to image-pixel space.
func (t Transform) ToImage(sx, sy float64) (float64, float64) {
	if t.Scale == 0 {
		return sx, sy
	}
	return (sx - t.OffsetX) / t.Scale, (sy - t.OffsetY) / t.Scale
}

// ToScreen converts an image-pixel point to screen space.
func (t Transform) ToScreen(ix, iy float64) (float64, float64) {
	return ix*t.Scale + t.OffsetX, iy*t.Scale + t.OffsetY
}

// Normalized is a bounding box in the center-form fractional encoding used
// by detection-training label files: all fields are fractions of the image
// dimensions, clamped to [0,1], with (X, Y) the box center.
type Normalized struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Normalize converts a pixel-space box into center-form fractions of the
// image dimensions. Zero dimensions yield a zero box.
func Normalize(b types.BoundingBox, width, height int) Normalized {
	if width <= 0 || height <= 0 {
		return Normalized{}
	}
	fw, fh := float64(width), float64(height)
	return Normalized{
		X: Clamp((b.X+b.W/2)/fw, 0, 1),
		Y: Clamp((b.Y+b.H/2)/fh, 0, 1),
		W: Clamp(b.W/fw, 0, 1),
		H: Clamp(b.H/fh, 0, 1),
	}
}

// Denormalize re-projects a center-form normalized box onto an image of the
// given pixel dimensions, reproducing the original top-left pixel box.
func Denormalize(n Normalized, width, height int) types.BoundingBox {
	fw, fh := float64(width), float64(height)
	w := n.W * fw
	h := n.H * fh
	return types.BoundingBox{
		X: n.X*fw - w/2,
		Y: n.Y*fh - h/2,
		W: w,
		H: h,
	}
}
