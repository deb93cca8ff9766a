package project

import "errors"

// Domain errors for store operations.
var (
	ErrUnknownClass       = errors.New("label is not in the project class vocabulary")
	ErrDegenerateBox      = errors.New("bounding box is below the minimum size")
	ErrImageNotFound      = errors.New("image not found in project")
	ErrAnnotationNotFound = errors.New("annotation not found on image")
	ErrInvalidStatus      = errors.New("status must be unlabeled or labeled")
)
