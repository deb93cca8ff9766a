package labeling

import "errors"

// Domain errors for batch auto-labeling.
var (
	// ErrAlreadyRunning marks an attempt to start a batch while another
	// batch is still in flight. At most one batch runs per orchestrator.
	ErrAlreadyRunning = errors.New("auto-label batch already running")
)
