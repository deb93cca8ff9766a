// Package export converts a project's annotation state into normalized,
// framework-ready records and hands them to the export boundary service
// that materializes the on-disk dataset layout.
package export

import (
	"fmt"

	"github.com/OlegDiz/localflow/pkg/geometry"
	"github.com/OlegDiz/localflow/pkg/types"
)

// Record is one annotation prepared for a label file: the class index in
// the effective class list plus the center-form normalized box.
type Record struct {
	Class int
	Box   geometry.Normalized
}

// EffectiveClasses resolves the class list used for label indexing. A
// non-empty project vocabulary is used verbatim; otherwise the distinct
// annotation labels across all images define it, in first-seen order.
func EffectiveClasses(p types.Project) []string {
	if len(p.Classes) > 0 {
		return p.Classes
	}

	seen := make(map[string]bool)
	var classes []string
	for _, img := range p.Images {
		for _, ann := range img.Annotations {
			if !seen[ann.Label] {
				seen[ann.Label] = true
				classes = append(classes, ann.Label)
			}
		}
	}
	return classes
}

// ClassIndex builds the label to index mapping for an effective class list.
func ClassIndex(classes []string) map[string]int {
	index := make(map[string]int, len(classes))
	for i, name := range classes {
		index[name] = i
	}
	return index
}

// ImageRecords normalizes every annotation of one image. Images without
// decoded dimensions fall back to the placeholder natural size so their raw
// pixel coordinates still normalize meaningfully. An annotation whose label
// is absent from the index fails the export.
func ImageRecords(img types.ProjectImage, index map[string]int) ([]Record, error) {
	width, height := img.Width, img.Height
	if width <= 0 || height <= 0 {
		width, height = types.PlaceholderWidth, types.PlaceholderHeight
	}

	records := make([]Record, 0, len(img.Annotations))
	for _, ann := range img.Annotations {
		cls, ok := index[ann.Label]
		if !ok {
			return nil, fmt.Errorf("%w: unknown class %q on image %s", ErrExportFailed, ann.Label, img.Name)
		}
		records = append(records, Record{
			Class: cls,
			Box:   geometry.Normalize(ann.BBox, width, height),
		})
	}
	return records, nil
}

// Validate checks that a project can be exported: at least one annotation
// exists and every annotation label resolves against the effective class
// list. It returns that list on success.
func Validate(p types.Project) ([]string, error) {
	classes := EffectiveClasses(p)
	index := ClassIndex(classes)

	annotated := 0
	for _, img := range p.Images {
		if _, err := ImageRecords(img, index); err != nil {
			return nil, err
		}
		annotated += len(img.Annotations)
	}
	if annotated == 0 {
		return nil, fmt.Errorf("%w: nothing to export", ErrExportFailed)
	}
	return classes, nil
}
