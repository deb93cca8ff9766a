package types

// BoundingBox is an axis-aligned rectangle in image-pixel space.
// (X, Y) is the top-left corner; W and H are never negative.
type BoundingBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// SourceManual marks annotations drawn by hand. Model-generated annotations
// carry the producing model identifier as their source.
const SourceManual = "manual"

// Annotation is one labeled bounding box on one image. Annotations are
// immutable once created; edits are modeled as delete + recreate.
type Annotation struct {
	ID         string      `json:"id"`
	Label      string      `json:"label"`
	Confidence float64     `json:"confidence"`
	BBox       BoundingBox `json:"bbox"`
	Source     string      `json:"source"`
}

// Image labeling status values.
const (
	StatusUnlabeled = "unlabeled"
	StatusLabeled   = "labeled"
)

// ProjectImage is a single asset in a project. Width and Height are the
// natural pixel dimensions of the decoded file; they may be zero until
// decoding finishes, during which bbox coordinates remain valid in the raw
// pixel space captured at draw time.
type ProjectImage struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	URL         string       `json:"url"`
	Width       int          `json:"width"`
	Height      int          `json:"height"`
	Annotations []Annotation `json:"annotations"`
	Status      string       `json:"status"`
}

// Project is the top-level aggregate of images, classes, and annotations.
// Image order is insertion order and governs navigation and export order.
// The class list only grows; deleting annotations never shrinks it.
type Project struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Classes []string       `json:"classes"`
	Images  []ProjectImage `json:"images"`
}

// Detection is a single model prediction before it becomes an annotation.
type Detection struct {
	Label      string      `json:"label"`
	Confidence float64     `json:"confidence"`
	BBox       BoundingBox `json:"bbox"`
	Source     string      `json:"source"`
}

// Recognized dataset export formats. The two differ only in the manifest's
// declared format tag.
const (
	FormatYOLOv8  = "YOLOv8"
	FormatYOLOv11 = "YOLOv11"
)

// Placeholder natural dimensions assumed for an image whose decode has not
// finished yet.
const (
	PlaceholderWidth  = 1200
	PlaceholderHeight = 800
)
