// Package project implements the annotation store: the single owner of the
// Project aggregate. Every mutation is expressed as a whole-value replace
// that produces a new Project snapshot, so concurrent event-driven callers
// never observe a torn intermediate state. Dependents subscribe to snapshot
// updates and re-derive their view.
package project

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/OlegDiz/localflow/pkg/geometry"
	"github.com/OlegDiz/localflow/pkg/types"
)

// NewImage describes an uploaded asset before it becomes a ProjectImage.
// Width and Height may be zero when the asset has not finished decoding.
type NewImage struct {
	Name   string
	URL    string
	Width  int
	Height int
}

// Listener receives the new Project snapshot after every mutation.
type Listener func(types.Project)

// Store owns the Project aggregate. All mutations flow through it; each one
// replaces the full Project value and bumps the revision counter.
type Store struct {
	mu        sync.Mutex
	project   types.Project
	revision  uint64
	logger    *slog.Logger
	listeners []Listener
}

// New creates a store owning the given initial project.
func New(p types.Project, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return &Store{
		project: p,
		logger:  logger.With("component", "store"),
	}
}

// Project returns the current Project snapshot. Snapshots share backing
// arrays with the store, which are never modified in place.
func (s *Store) Project() types.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.project
}

// Revision returns the number of mutations applied so far. It increases
// monotonically and never repeats, which lets long-running work detect that
// the aggregate moved underneath it.
func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Subscribe registers a listener invoked with the new snapshot after every
// mutation. Listeners run synchronously on the mutating call.
func (s *Store) Subscribe(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// commit installs the new project value, releases the lock, and notifies
// listeners. Must be called with s.mu held, as the final store access of
// the mutating operation.
func (s *Store) commit(next types.Project) {
	s.project = next
	s.revision++
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
}

// AddImages appends uploaded assets to the project in the given order and
// returns their assigned ids.
func (s *Store) AddImages(uploads []NewImage) []string {
	s.mu.Lock()

	ids := make([]string, 0, len(uploads))
	images := make([]types.ProjectImage, len(s.project.Images), len(s.project.Images)+len(uploads))
	copy(images, s.project.Images)

	for _, up := range uploads {
		id := uuid.NewString()
		ids = append(ids, id)
		images = append(images, types.ProjectImage{
			ID:          id,
			Name:        up.Name,
			URL:         up.URL,
			Width:       up.Width,
			Height:      up.Height,
			Annotations: []types.Annotation{},
			Status:      types.StatusUnlabeled,
		})
	}

	next := s.project
	next.Images = images
	s.commit(next)

	s.logger.Info("images added", "count", len(uploads), "total", len(images))
	return ids
}

// AddClass appends a class to the vocabulary if not already present.
// The vocabulary only grows.
func (s *Store) AddClass(name string) {
	s.mu.Lock()

	for _, c := range s.project.Classes {
		if c == name {
			s.mu.Unlock()
			return
		}
	}
	classes := make([]string, len(s.project.Classes), len(s.project.Classes)+1)
	copy(classes, s.project.Classes)

	next := s.project
	next.Classes = append(classes, name)
	s.commit(next)
}

// RemoveImage removes the image with the given id.
func (s *Store) RemoveImage(id string) error {
	s.mu.Lock()

	idx := s.imageIndex(id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("remove image %s: %w", id, ErrImageNotFound)
	}

	images := make([]types.ProjectImage, 0, len(s.project.Images)-1)
	images = append(images, s.project.Images[:idx]...)
	images = append(images, s.project.Images[idx+1:]...)

	next := s.project
	next.Images = images
	s.commit(next)
	return nil
}

// ResetAll clears every image from the workspace. The class vocabulary is
// kept: it only grows for the lifetime of the project.
func (s *Store) ResetAll() {
	s.mu.Lock()

	next := s.project
	next.Images = []types.ProjectImage{}
	s.commit(next)
	s.logger.Info("workspace reset")
}

// AddAnnotation validates and commits a manually drawn box on an image.
// The label must be a member of the class vocabulary and the box, clipped to
// the image bounds when the natural size is known, must meet the minimum
// size. The image status is left untouched: manual draws do not auto-verify.
func (s *Store) AddAnnotation(imageID, label string, bbox types.BoundingBox) (types.Annotation, error) {
	s.mu.Lock()

	idx := s.imageIndex(imageID)
	if idx < 0 {
		s.mu.Unlock()
		return types.Annotation{}, fmt.Errorf("annotate image %s: %w", imageID, ErrImageNotFound)
	}
	if !s.hasClass(label) {
		s.mu.Unlock()
		return types.Annotation{}, fmt.Errorf("annotate with label %q: %w", label, ErrUnknownClass)
	}

	img := s.project.Images[idx]
	if img.Width > 0 && img.Height > 0 {
		bbox = geometry.ClipToImage(bbox, float64(img.Width), float64(img.Height))
	}
	if geometry.IsDegenerate(bbox, geometry.MinBoxSize) {
		s.mu.Unlock()
		return types.Annotation{}, fmt.Errorf("annotate %.0fx%.0f box: %w", bbox.W, bbox.H, ErrDegenerateBox)
	}

	ann := types.Annotation{
		ID:         uuid.NewString(),
		Label:      label,
		Confidence: 1.0,
		BBox:       bbox,
		Source:     types.SourceManual,
	}

	img.Annotations = append(cloneAnnotations(img.Annotations), ann)
	s.commitImage(idx, img)
	return ann, nil
}

// AddDetections appends model detections to an image and marks it labeled.
// Detections with degenerate boxes (after clipping) are dropped, confidence
// is clamped to [0,1], and each annotation gets an auto-prefixed id. Writes
// against an image that has since been removed return ErrImageNotFound so
// the caller can drop the stale result.
func (s *Store) AddDetections(imageID string, dets []types.Detection) (int, error) {
	s.mu.Lock()

	idx := s.imageIndex(imageID)
	if idx < 0 {
		s.mu.Unlock()
		return 0, fmt.Errorf("apply detections to image %s: %w", imageID, ErrImageNotFound)
	}

	img := s.project.Images[idx]
	anns := cloneAnnotations(img.Annotations)
	kept := 0
	for _, d := range dets {
		bbox := d.BBox
		if img.Width > 0 && img.Height > 0 {
			bbox = geometry.ClipToImage(bbox, float64(img.Width), float64(img.Height))
		}
		if geometry.IsDegenerate(bbox, geometry.MinBoxSize) {
			s.logger.Debug("detection dropped", "image", imageID, "label", d.Label, "w", bbox.W, "h", bbox.H)
			continue
		}
		anns = append(anns, types.Annotation{
			ID:         "auto-" + uuid.NewString()[:8],
			Label:      d.Label,
			Confidence: geometry.Clamp(d.Confidence, 0, 1),
			BBox:       bbox,
			Source:     d.Source,
		})
		kept++
	}

	img.Annotations = anns
	// An empty result leaves the image unlabeled so a later batch
	// retries it; labeled means at least one annotation was attached.
	if kept > 0 {
		img.Status = types.StatusLabeled
	}
	s.commitImage(idx, img)
	return kept, nil
}

// RemoveAnnotation deletes one annotation from an image.
func (s *Store) RemoveAnnotation(imageID, annotationID string) error {
	s.mu.Lock()

	idx := s.imageIndex(imageID)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("remove annotation from image %s: %w", imageID, ErrImageNotFound)
	}

	img := s.project.Images[idx]
	anns := make([]types.Annotation, 0, len(img.Annotations))
	found := false
	for _, a := range img.Annotations {
		if a.ID == annotationID {
			found = true
			continue
		}
		anns = append(anns, a)
	}
	if !found {
		s.mu.Unlock()
		return fmt.Errorf("remove annotation %s: %w", annotationID, ErrAnnotationNotFound)
	}

	img.Annotations = anns
	s.commitImage(idx, img)
	return nil
}

// SetImageStatus sets the labeling status of an image.
func (s *Store) SetImageStatus(imageID, status string) error {
	if status != types.StatusUnlabeled && status != types.StatusLabeled {
		return fmt.Errorf("set status %q: %w", status, ErrInvalidStatus)
	}

	s.mu.Lock()

	idx := s.imageIndex(imageID)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("set status on image %s: %w", imageID, ErrImageNotFound)
	}

	img := s.project.Images[idx]
	img.Status = status
	s.commitImage(idx, img)
	return nil
}

// ToggleImageStatus flips an image between labeled and unlabeled, the
// manual verification control.
func (s *Store) ToggleImageStatus(imageID string) error {
	s.mu.Lock()

	idx := s.imageIndex(imageID)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("toggle status on image %s: %w", imageID, ErrImageNotFound)
	}

	img := s.project.Images[idx]
	if img.Status == types.StatusLabeled {
		img.Status = types.StatusUnlabeled
	} else {
		img.Status = types.StatusLabeled
	}
	s.commitImage(idx, img)
	return nil
}

// ClassStats counts annotations per label across the whole project.
func (s *Store) ClassStats() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make(map[string]int)
	for _, img := range s.project.Images {
		for _, ann := range img.Annotations {
			stats[ann.Label]++
		}
	}
	return stats
}

// SetImageDimensions records the natural pixel size of an image once its
// asset finishes decoding.
func (s *Store) SetImageDimensions(imageID string, width, height int) error {
	s.mu.Lock()

	idx := s.imageIndex(imageID)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("set dimensions on image %s: %w", imageID, ErrImageNotFound)
	}

	img := s.project.Images[idx]
	img.Width = width
	img.Height = height
	s.commitImage(idx, img)
	return nil
}

// commitImage commits an updated image at idx via a whole-value replace.
// Must be called with s.mu held; releases the lock like commit.
func (s *Store) commitImage(idx int, img types.ProjectImage) {
	images := make([]types.ProjectImage, len(s.project.Images))
	copy(images, s.project.Images)
	images[idx] = img

	next := s.project
	next.Images = images
	s.commit(next)
}

func (s *Store) imageIndex(id string) int {
	for i, img := range s.project.Images {
		if img.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) hasClass(label string) bool {
	for _, c := range s.project.Classes {
		if c == label {
			return true
		}
	}
	return false
}

func cloneAnnotations(anns []types.Annotation) []types.Annotation {
	out := make([]types.Annotation, len(anns))
	copy(out, anns)
	return out
}
