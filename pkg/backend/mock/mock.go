// Package mock implements a synthetic vision backend for offline
// development. It answers without any network call and its detections are
// deterministic so tests and demos are reproducible.
package mock

import (
	"context"

	"github.com/OlegDiz/localflow/pkg/backend"
	"github.com/OlegDiz/localflow/pkg/types"
)

// Model identifiers the mock backend advertises.
const (
	ModelVision = "mock-vision-v1"
	ModelSeg    = "mock-seg-v2"
)

// Client is the synthetic backend.
type Client struct{}

// NewClient creates a mock backend.
func NewClient() *Client { return &Client{} }

// Kind identifies this backend family.
func (c *Client) Kind() string { return "mock" }

// ListModels returns the fixed synthetic model list.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	return []string{ModelVision, ModelSeg}, nil
}

// Infer returns deterministic synthetic detections. The vision model finds
// a single generic object; the segmentation model returns a richer fixed
// scene. Boxes are in absolute pixels against the common 1200x800 asset.
func (c *Client) Infer(ctx context.Context, req backend.InferRequest) ([]types.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	model := req.Model
	if model == "" {
		model = ModelVision
	}

	if model == ModelSeg {
		return []types.Detection{
			{Label: "person", Confidence: 0.94, BBox: types.BoundingBox{X: 400, Y: 100, W: 300, H: 600}, Source: model},
			{Label: "detected_object", Confidence: 0.65, BBox: types.BoundingBox{X: 450, Y: 250, W: 200, H: 250}, Source: model},
			{Label: "detail", Confidence: 0.45, BBox: types.BoundingBox{X: 480, Y: 100, W: 120, H: 80}, Source: model},
		}, nil
	}

	return []types.Detection{
		{Label: "detected_object", Confidence: 0.89, BBox: types.BoundingBox{X: 200, Y: 150, W: 300, H: 400}, Source: model},
	}, nil
}
