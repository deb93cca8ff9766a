// Package labeling runs batch auto-labeling: one inference pass per
// unlabeled image against a selected backend model, with the results
// written back into the project store.
package labeling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/OlegDiz/localflow/pkg/backend"
	"github.com/OlegDiz/localflow/pkg/project"
	"github.com/OlegDiz/localflow/pkg/types"
)

// Encoder prepares an image for transmission to a model. Implementations
// load the image from wherever its URL points and return the encoded
// payload with natural dimensions.
type Encoder func(ctx context.Context, img types.ProjectImage) (backend.Payload, error)

// Progress is called after each image finishes, successfully or not.
type Progress func(done, total int, imageID string)

// ImageError records one image that failed during a batch.
type ImageError struct {
	ImageID string
	Name    string
	Err     error
}

// Result summarizes a completed batch.
type Result struct {
	// Processed counts images that went through inference.
	Processed int
	// Skipped counts images that were already labeled.
	Skipped int
	// Applied counts annotations written to the store.
	Applied int
	// Dropped counts predictions discarded as degenerate after clipping.
	Dropped int
	// Stale counts images removed from the project mid-batch; their
	// results were discarded without error.
	Stale int
	// Failures lists images whose encode or inference step failed.
	Failures []ImageError
}

// Orchestrator drives batch auto-labeling against a project store. At most
// one batch is in flight at a time; a second RunBatch fails with
// ErrAlreadyRunning instead of queueing.
type Orchestrator struct {
	store  *project.Store
	logger *slog.Logger

	mu      sync.Mutex
	running bool

	// OnProgress, when set, is invoked synchronously after each image.
	OnProgress Progress
}

// NewOrchestrator creates an orchestrator over the given store.
func NewOrchestrator(store *project.Store, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{store: store, logger: logger.With("component", "labeling")}
}

// Running reports whether a batch is currently in flight.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// RunBatch labels every unlabeled image in the project, in list order, one
// inference at a time. Already-labeled images are skipped, so rerunning a
// batch is idempotent. A failing image is recorded and the batch moves on;
// only a cancelled context aborts the whole run.
func (o *Orchestrator) RunBatch(ctx context.Context, b backend.Backend, model, prompt string, encode Encoder) (Result, error) {
	if model == "" {
		return Result{}, backend.ErrNoModel
	}

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return Result{}, ErrAlreadyRunning
	}
	o.running = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	snapshot := o.store.Project()
	total := len(snapshot.Images)
	o.logger.Info("batch started", "backend", b.Kind(), "model", model, "images", total)

	var res Result
	for i, img := range snapshot.Images {
		if err := ctx.Err(); err != nil {
			o.logger.Info("batch cancelled", "done", i, "total", total)
			return res, err
		}

		if img.Status == types.StatusLabeled {
			res.Skipped++
			o.report(i+1, total, img.ID)
			continue
		}

		if err := o.labelOne(ctx, b, model, prompt, encode, img, &res); err != nil {
			res.Failures = append(res.Failures, ImageError{ImageID: img.ID, Name: img.Name, Err: err})
			o.logger.Warn("image failed", "image", img.Name, "error", err)
		}
		o.report(i+1, total, img.ID)
	}

	o.logger.Info("batch finished",
		"processed", res.Processed, "skipped", res.Skipped,
		"applied", res.Applied, "dropped", res.Dropped,
		"stale", res.Stale, "failed", len(res.Failures))
	return res, nil
}

func (o *Orchestrator) labelOne(ctx context.Context, b backend.Backend, model, prompt string, encode Encoder, img types.ProjectImage, res *Result) error {
	payload, err := encode(ctx, img)
	if err != nil {
		return fmt.Errorf("encode %s: %w", img.Name, err)
	}

	dets, err := b.Infer(ctx, backend.InferRequest{Image: payload, Prompt: prompt, Model: model})
	if err != nil {
		return fmt.Errorf("infer %s: %w", img.Name, err)
	}
	res.Processed++

	kept, err := o.store.AddDetections(img.ID, dets)
	if errors.Is(err, project.ErrImageNotFound) {
		// The image was removed while inference ran. Its results have
		// nowhere to go; discard them and keep the batch moving.
		res.Stale++
		o.logger.Debug("stale result discarded", "image", img.ID)
		return nil
	}
	if err != nil {
		return err
	}

	res.Applied += kept
	res.Dropped += len(dets) - kept
	return nil
}

func (o *Orchestrator) report(done, total int, imageID string) {
	if o.OnProgress != nil {
		o.OnProgress(done, total, imageID)
	}
}
