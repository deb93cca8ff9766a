package export

import "errors"

// Domain errors for dataset export.
var (
	// ErrExportFailed marks any export that could not complete: validation
	// failures, boundary I/O errors, and non-success responses all wrap it
	// with a reason.
	ErrExportFailed = errors.New("export failed")
)
