package backend

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/OlegDiz/localflow/pkg/types"
)

// Vision models in zero-shot mode answer with a JSON array of
// {"bbox_2d": [x1, y1, x2, y2], "label": "..."} entries, usually on a
// 0-1000 coordinate grid and often wrapped in prose or code fences.

// rawDetection mirrors one entry of the model's answer.
type rawDetection struct {
	BBox2D     []float64 `json:"bbox_2d"`
	Label      string    `json:"label"`
	Confidence *float64  `json:"confidence"`
}

var jsonArrayRE = regexp.MustCompile(`(?s)(\[.*\])`)

// qwenGridScale is the coordinate grid most zero-shot detection outputs
// use; parsed boxes are rescaled from it to the image's pixel dimensions.
const qwenGridScale = 1000.0

// ParseDetections extracts detections from a raw model response and scales
// their boxes to pixel space for an image of the given natural dimensions.
// Unparseable responses yield an empty slice, never an error: a confused
// model is treated the same as a model that found nothing.
func ParseDetections(raw string, width, height int, model string) []types.Detection {
	cleaned := extractJSONArray(raw)
	if cleaned == "" {
		return nil
	}

	var items []rawDetection
	if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
		return nil
	}

	dets := make([]types.Detection, 0, len(items))
	for _, item := range items {
		if len(item.BBox2D) != 4 {
			continue
		}
		x1, y1, x2, y2 := item.BBox2D[0], item.BBox2D[1], item.BBox2D[2], item.BBox2D[3]

		label := item.Label
		if label == "" {
			label = "object"
		}
		confidence := 1.0
		if item.Confidence != nil {
			confidence = *item.Confidence
		}

		bbox := types.BoundingBox{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
		if width > 0 && height > 0 {
			bbox = scaleFromGrid(bbox, width, height)
		}

		dets = append(dets, types.Detection{
			Label:      label,
			Confidence: confidence,
			BBox:       bbox,
			Source:     model,
		})
	}
	return dets
}

// scaleFromGrid converts a box from the model's 0-1000 grid to absolute
// pixels.
func scaleFromGrid(b types.BoundingBox, width, height int) types.BoundingBox {
	fw, fh := float64(width), float64(height)
	return types.BoundingBox{
		X: b.X / qwenGridScale * fw,
		Y: b.Y / qwenGridScale * fh,
		W: b.W / qwenGridScale * fw,
		H: b.H / qwenGridScale * fh,
	}
}

// extractJSONArray pulls the JSON array out of a model response that may
// contain surrounding prose or markdown code fences.
func extractJSONArray(raw string) string {
	if m := jsonArrayRE.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	cleaned := strings.ReplaceAll(raw, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	return strings.TrimSpace(cleaned)
}
