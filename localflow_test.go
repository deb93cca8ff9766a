package localflow

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/OlegDiz/localflow/pkg/config"
	"github.com/OlegDiz/localflow/pkg/backend/mock"
	"github.com/OlegDiz/localflow/pkg/types"
)

func testWorkspace(t *testing.T) *Workspace {
	t.Helper()
	cfg := config.Default()
	cfg.Backends.Provider = "mock"
	cfg.Library.UploadDir = filepath.Join(t.TempDir(), "uploads")

	ws, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return ws
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 90, B: 140, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Export.Format = "COCO"
	if _, err := New(cfg, nil); err == nil {
		t.Error("expected validation error")
	}
}

func TestAddFileRegistersImage(t *testing.T) {
	ws := testWorkspace(t)

	id, err := ws.AddFile("photo.png", encodePNG(t, 640, 480))
	if err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}

	p := ws.Store().Project()
	if len(p.Images) != 1 || p.Images[0].ID != id {
		t.Fatalf("image not registered: %+v", p.Images)
	}
	if p.Images[0].Width != 640 || p.Images[0].Height != 480 {
		t.Errorf("dimensions = %dx%d", p.Images[0].Width, p.Images[0].Height)
	}
	if p.Images[0].Status != types.StatusUnlabeled {
		t.Errorf("status = %q", p.Images[0].Status)
	}
}

func TestSelectBackendCachesModels(t *testing.T) {
	ws := testWorkspace(t)

	models := ws.SelectBackend(context.Background(), "mock")
	if len(models) != 2 || models[0] != mock.ModelVision {
		t.Errorf("unexpected models: %v", models)
	}
	if ws.Provider() != "mock" {
		t.Errorf("provider = %q", ws.Provider())
	}
	if got := ws.Models(); len(got) != 2 {
		t.Errorf("cached models = %v", got)
	}
}

func TestSelectBackendUnknownKind(t *testing.T) {
	ws := testWorkspace(t)
	if models := ws.SelectBackend(context.Background(), "cloud"); models != nil {
		t.Errorf("expected nil models, got %v", models)
	}
}

func TestAutoLabelEndToEnd(t *testing.T) {
	ws := testWorkspace(t)
	ctx := context.Background()

	if _, err := ws.AddFile("a.png", encodePNG(t, 1200, 800)); err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}
	ws.SelectBackend(ctx, "mock")

	result, err := ws.AutoLabel(ctx)
	if err != nil {
		t.Fatalf("AutoLabel failed: %v", err)
	}
	if result.Processed != 1 || result.Applied != 1 {
		t.Errorf("unexpected result: %+v", result)
	}

	img := ws.Store().Project().Images[0]
	if img.Status != types.StatusLabeled {
		t.Errorf("status = %q", img.Status)
	}
	if len(img.Annotations) != 1 || img.Annotations[0].Label != "detected_object" {
		t.Errorf("unexpected annotations: %+v", img.Annotations)
	}
}

func TestRenderPreviewWritesFile(t *testing.T) {
	ws := testWorkspace(t)
	ctx := context.Background()

	id, err := ws.AddFile("a.png", encodePNG(t, 400, 300))
	if err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}
	ws.SelectBackend(ctx, "mock")
	if _, err := ws.AutoLabel(ctx); err != nil {
		t.Fatalf("AutoLabel failed: %v", err)
	}

	out := filepath.Join(t.TempDir(), "preview.png")
	if err := ws.RenderPreview(id, out); err != nil {
		t.Fatalf("RenderPreview failed: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("preview missing: %v", err)
	}
}

func TestRenderPreviewUnknownImage(t *testing.T) {
	ws := testWorkspace(t)
	if err := ws.RenderPreview("ghost", filepath.Join(t.TempDir(), "x.png")); err == nil {
		t.Error("expected error for unknown image")
	}
}
