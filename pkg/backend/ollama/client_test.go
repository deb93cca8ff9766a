package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/OlegDiz/localflow/pkg/backend"
)

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"id":"qwen3-vl:4b"}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(models) != 1 || models[0] != "qwen3-vl:4b" {
		t.Errorf("unexpected models: %v", models)
	}
}

func TestInfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["model"] != "qwen3-vl:4b" {
			t.Errorf("model = %v", req["model"])
		}
		if req["system"] != backend.SystemPrompt {
			t.Errorf("system prompt = %v", req["system"])
		}
		// The wire prompt carries both the user prompt and the detection
		// instructions.
		if req["prompt"] != "Detect all people. "+backend.SystemPrompt {
			t.Errorf("prompt = %v", req["prompt"])
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"qwen3-vl:4b","response":"[{\"bbox_2d\": [100, 100, 600, 500], \"label\": \"person\"}]","done":true}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	dets, err := c.Infer(context.Background(), backend.InferRequest{
		Image:  backend.Payload{B64: "aGVsbG8=", MIME: "image/jpeg", Width: 1000, Height: 1000},
		Prompt: "Detect all people.",
		Model:  "qwen3-vl:4b",
	})
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if len(dets) != 1 || dets[0].Label != "person" {
		t.Fatalf("unexpected detections: %+v", dets)
	}
	if dets[0].BBox.W != 500 || dets[0].BBox.H != 400 {
		t.Errorf("unexpected bbox: %+v", dets[0].BBox)
	}
}

func TestInferNoModel(t *testing.T) {
	c, err := NewClient("")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	_, err = c.Infer(context.Background(), backend.InferRequest{})
	if !errors.Is(err, backend.ErrNoModel) {
		t.Errorf("expected ErrNoModel, got %v", err)
	}
}
