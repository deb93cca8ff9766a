package geometry

import (
	"math"
	"testing"

	"github.com/OlegDiz/localflow/pkg/types"
)

func TestFromCorners(t *testing.T) {
	tests := []struct {
		name           string
		ax, ay, bx, by float64
		want           types.BoundingBox
	}{
		{"down-right drag", 10, 20, 110, 70, types.BoundingBox{X: 10, Y: 20, W: 100, H: 50}},
		{"up-left drag", 110, 70, 10, 20, types.BoundingBox{X: 10, Y: 20, W: 100, H: 50}},
		{"down-left drag", 110, 20, 10, 70, types.BoundingBox{X: 10, Y: 20, W: 100, H: 50}},
		{"degenerate point", 5, 5, 5, 5, types.BoundingBox{X: 5, Y: 5, W: 0, H: 0}},
	}

	for _, tt := range tests {
		got := FromCorners(tt.ax, tt.ay, tt.bx, tt.by)
		if got != tt.want {
			t.Errorf("%s: FromCorners() = %+v, want %+v", tt.name, got, tt.want)
		}
	}
}

func TestIsDegenerate(t *testing.T) {
	if !IsDegenerate(types.BoundingBox{W: 2, H: 100}, MinBoxSize) {
		t.Error("narrow box should be degenerate")
	}
	if !IsDegenerate(types.BoundingBox{W: 100, H: 2}, MinBoxSize) {
		t.Error("flat box should be degenerate")
	}
	if IsDegenerate(types.BoundingBox{W: 4, H: 4}, MinBoxSize) {
		t.Error("box at the threshold should not be degenerate")
	}
}

func TestClipToImage(t *testing.T) {
	b := types.BoundingBox{X: -10, Y: 50, W: 100, H: 100}
	clipped := ClipToImage(b, 200, 120)

	if clipped.X != 0 {
		t.Errorf("expected x clipped to 0, got %f", clipped.X)
	}
	if clipped.W != 90 {
		t.Errorf("expected width reduced to 90, got %f", clipped.W)
	}
	if clipped.Y+clipped.H != 120 {
		t.Errorf("expected bottom edge at 120, got %f", clipped.Y+clipped.H)
	}

	outside := ClipToImage(types.BoundingBox{X: 500, Y: 500, W: 50, H: 50}, 200, 120)
	if outside.W != 0 || outside.H != 0 {
		t.Errorf("box outside bounds should collapse, got %+v", outside)
	}
}

func TestHitIndexTopmostWins(t *testing.T) {
	anns := []types.Annotation{
		{ID: "a", BBox: types.BoundingBox{X: 0, Y: 0, W: 100, H: 100}},
		{ID: "b", BBox: types.BoundingBox{X: 50, Y: 50, W: 100, H: 100}},
	}

	// Point inside both: last-inserted wins.
	if got := HitIndex(anns, 75, 75); got != 1 {
		t.Errorf("overlapping hit should resolve to index 1, got %d", got)
	}
	// Point only inside the first.
	if got := HitIndex(anns, 10, 10); got != 0 {
		t.Errorf("expected index 0, got %d", got)
	}
	// Point inside neither.
	if got := HitIndex(anns, 300, 300); got != -1 {
		t.Errorf("expected miss (-1), got %d", got)
	}
}

func TestTransformRoundTrip(t *testing.T) {
	tr := FitTransform(1200, 800, 600, 600)

	// Contain-fit: the limiting axis is width (600/1200 = 0.5).
	if tr.Scale != 0.5 {
		t.Errorf("expected scale 0.5, got %f", tr.Scale)
	}
	if tr.OffsetX != 0 || tr.OffsetY != 100 {
		t.Errorf("expected centered offsets (0, 100), got (%f, %f)", tr.OffsetX, tr.OffsetY)
	}

	ix, iy := tr.ToImage(300, 300)
	sx, sy := tr.ToScreen(ix, iy)
	if math.Abs(sx-300) > 1e-9 || math.Abs(sy-300) > 1e-9 {
		t.Errorf("round trip drifted: (%f, %f)", sx, sy)
	}
}

func TestNormalizeDenormalizeRoundTrip(t *testing.T) {
	tests := []struct {
		name          string
		box           types.BoundingBox
		width, height int
	}{
		{"interior box", types.BoundingBox{X: 10, Y: 10, W: 100, H: 50}, 1200, 800},
		{"full frame", types.BoundingBox{X: 0, Y: 0, W: 640, H: 480}, 640, 480},
		{"placeholder dimensions", types.BoundingBox{X: 200, Y: 150, W: 300, H: 400}, 1200, 800},
	}

	const tol = 1e-9
	for _, tt := range tests {
		n := Normalize(tt.box, tt.width, tt.height)
		back := Denormalize(n, tt.width, tt.height)

		if math.Abs(back.X-tt.box.X) > tol || math.Abs(back.Y-tt.box.Y) > tol ||
			math.Abs(back.W-tt.box.W) > tol || math.Abs(back.H-tt.box.H) > tol {
			t.Errorf("%s: round trip %+v -> %+v -> %+v", tt.name, tt.box, n, back)
		}
	}
}

func TestNormalizeClampsToUnitRange(t *testing.T) {
	n := Normalize(types.BoundingBox{X: -100, Y: -100, W: 5000, H: 5000}, 1200, 800)
	for _, v := range []float64{n.X, n.Y, n.W, n.H} {
		if v < 0 || v > 1 {
			t.Errorf("normalized component %f escaped [0,1]: %+v", v, n)
		}
	}
}

func TestNormalizeZeroDimensions(t *testing.T) {
	n := Normalize(types.BoundingBox{X: 10, Y: 10, W: 100, H: 100}, 0, 0)
	if n != (Normalized{}) {
		t.Errorf("zero-dimension image should yield a zero box, got %+v", n)
	}
}
