// Package session implements the interactive editing state machine: tool
// modes, the in-progress draw rectangle, image navigation, selection, and
// the keyboard map. It translates pointer and keyboard events into store
// mutations and never touches a ProjectImage directly.
//
// A Session mirrors the single UI event loop and is not safe for concurrent
// use. Pointer coordinates are in image-pixel space; the rendering shell
// converts from screen space with geometry.Transform before forwarding.
package session

import (
	"errors"
	"log/slog"

	"github.com/OlegDiz/localflow/pkg/geometry"
	"github.com/OlegDiz/localflow/pkg/project"
	"github.com/OlegDiz/localflow/pkg/types"
)

// Tool selects how pointer events are interpreted.
type Tool int

const (
	ToolSelect Tool = iota
	ToolDraw
)

// Point is a position in image-pixel space.
type Point struct {
	X float64
	Y float64
}

// KeyEvent is a keyboard event forwarded from the shell. Key uses DOM key
// names ("d", "1", "ArrowLeft", "Delete", "Escape", ...). InTextInput marks
// events originating while focus is inside a text input; those are ignored.
type KeyEvent struct {
	Key         string
	InTextInput bool
}

// Shortcut keys.
const (
	KeyDrawTool   = "d"
	KeySelectTool = "s"
	KeyPrevImage  = "ArrowLeft"
	KeyNextImage  = "ArrowRight"
	KeyDelete     = "Delete"
	KeyBackspace  = "Backspace"
	KeyEscape     = "Escape"
)

// Session is the interaction state machine for one project store.
type Session struct {
	store  *project.Store
	logger *slog.Logger

	tool        Tool
	activeClass int
	current     int
	selectedBox string

	drawing bool
	anchor  Point
	preview types.BoundingBox
}

// New creates a session over the given store, starting in select mode at
// the first image.
func New(store *project.Store, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		store:  store,
		logger: logger.With("component", "session"),
	}
}

// Tool returns the active tool.
func (s *Session) Tool() Tool { return s.tool }

// SetTool switches the active tool; switching away from draw abandons any
// in-progress rectangle.
func (s *Session) SetTool(t Tool) {
	if t != s.tool {
		s.drawing = false
	}
	s.tool = t
}

// ActiveClassIndex returns the index of the class new boxes are labeled with.
func (s *Session) ActiveClassIndex() int { return s.activeClass }

// ActiveClass returns the active class name, or false when the vocabulary
// is empty.
func (s *Session) ActiveClass() (string, bool) {
	classes := s.store.Project().Classes
	if len(classes) == 0 {
		return "", false
	}
	if s.activeClass >= len(classes) {
		return classes[0], true
	}
	return classes[s.activeClass], true
}

// CurrentIndex returns the current image index, clamped to the image list.
// It is only meaningful when the project has images.
func (s *Session) CurrentIndex() int {
	s.clampIndex(len(s.store.Project().Images))
	return s.current
}

// CurrentImage returns the image under the cursor, or false when the
// project is empty.
func (s *Session) CurrentImage() (types.ProjectImage, bool) {
	images := s.store.Project().Images
	if len(images) == 0 {
		return types.ProjectImage{}, false
	}
	s.clampIndex(len(images))
	return images[s.current], true
}

// SelectedBox returns the id of the selected annotation, or false when the
// selection is empty or no longer exists.
func (s *Session) SelectedBox() (string, bool) {
	if s.selectedBox == "" {
		return "", false
	}
	img, ok := s.CurrentImage()
	if !ok {
		s.selectedBox = ""
		return "", false
	}
	for _, a := range img.Annotations {
		if a.ID == s.selectedBox {
			return s.selectedBox, true
		}
	}
	s.selectedBox = ""
	return "", false
}

// Preview returns the live draw rectangle, or false when not drawing.
func (s *Session) Preview() (types.BoundingBox, bool) {
	if !s.drawing {
		return types.BoundingBox{}, false
	}
	return s.preview, true
}

// PointerDown starts a draw at p in draw mode, or resolves the selection in
// select mode. Clicks on empty canvas clear the selection; overlapping
// annotations resolve to the topmost in rendering order.
func (s *Session) PointerDown(p Point) {
	img, ok := s.CurrentImage()
	if !ok {
		return
	}

	switch s.tool {
	case ToolDraw:
		s.drawing = true
		s.anchor = p
		s.preview = types.BoundingBox{X: p.X, Y: p.Y}
	case ToolSelect:
		if idx := geometry.HitIndex(img.Annotations, p.X, p.Y); idx >= 0 {
			s.selectedBox = img.Annotations[idx].ID
		} else {
			s.selectedBox = ""
		}
	}
}

// PointerMove recomputes the live preview rectangle while drawing.
func (s *Session) PointerMove(p Point) {
	if !s.drawing {
		return
	}
	box := geometry.FromCorners(s.anchor.X, s.anchor.Y, p.X, p.Y)
	if img, ok := s.CurrentImage(); ok && img.Width > 0 && img.Height > 0 {
		box = geometry.ClipToImage(box, float64(img.Width), float64(img.Height))
	}
	s.preview = box
}

// PointerUp ends a draw. A box meeting the minimum size is committed with
// the active class; anything smaller is discarded silently.
func (s *Session) PointerUp(p Point) {
	if !s.drawing {
		return
	}
	s.drawing = false

	box := geometry.FromCorners(s.anchor.X, s.anchor.Y, p.X, p.Y)
	if geometry.IsDegenerate(box, geometry.MinBoxSize) {
		return
	}

	img, ok := s.CurrentImage()
	if !ok {
		return
	}
	label, ok := s.ActiveClass()
	if !ok {
		s.logger.Warn("draw discarded: empty class vocabulary")
		return
	}

	if _, err := s.store.AddAnnotation(img.ID, label, box); err != nil {
		// Validation failures stay local; nothing propagates to the shell.
		if !errors.Is(err, project.ErrDegenerateBox) {
			s.logger.Warn("draw rejected", "error", err)
		}
	}
}

// HandleKey applies the global keyboard map. Events from text inputs are
// ignored wholesale.
func (s *Session) HandleKey(ev KeyEvent) {
	if ev.InTextInput {
		return
	}

	switch ev.Key {
	case KeyDrawTool:
		s.SetTool(ToolDraw)
	case KeySelectTool:
		s.SetTool(ToolSelect)
	case KeyPrevImage:
		s.Prev()
	case KeyNextImage:
		s.Next()
	case KeyDelete, KeyBackspace:
		s.DeleteSelected()
	case KeyEscape:
		s.selectedBox = ""
	default:
		if ev.Key >= "1" && ev.Key <= "9" && len(ev.Key) == 1 {
			s.selectClassByNumber(int(ev.Key[0] - '0'))
		}
	}
}

// selectClassByNumber sets the active class from a numeric key 1..N.
// Out-of-range keys are no-ops.
func (s *Session) selectClassByNumber(n int) {
	classes := s.store.Project().Classes
	if n >= 1 && n <= len(classes) {
		s.activeClass = n - 1
	}
}

// Next moves to the next image, clamped at the last, and clears selection.
func (s *Session) Next() {
	images := s.store.Project().Images
	if len(images) == 0 {
		return
	}
	if s.current < len(images)-1 {
		s.current++
	}
	s.selectedBox = ""
	s.drawing = false
}

// Prev moves to the previous image, clamped at the first, and clears
// selection.
func (s *Session) Prev() {
	images := s.store.Project().Images
	if len(images) == 0 {
		return
	}
	if s.current > 0 {
		s.current--
	}
	s.selectedBox = ""
	s.drawing = false
}

// DeleteSelected removes the selected annotation from the current image.
func (s *Session) DeleteSelected() {
	id, ok := s.SelectedBox()
	if !ok {
		return
	}
	img, ok := s.CurrentImage()
	if !ok {
		return
	}
	if err := s.store.RemoveAnnotation(img.ID, id); err != nil {
		s.logger.Warn("delete failed", "annotation", id, "error", err)
	}
	s.selectedBox = ""
}

// clampIndex keeps the current index inside [0, count).
func (s *Session) clampIndex(count int) {
	if count == 0 {
		s.current = 0
		return
	}
	if s.current >= count {
		s.current = count - 1
	}
	if s.current < 0 {
		s.current = 0
	}
}
