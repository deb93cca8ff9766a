package labeling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/OlegDiz/localflow/pkg/backend"
	"github.com/OlegDiz/localflow/pkg/backend/mock"
	"github.com/OlegDiz/localflow/pkg/project"
	"github.com/OlegDiz/localflow/pkg/types"
)

func newStore(t *testing.T, n int) (*project.Store, []string) {
	t.Helper()
	s := project.New(types.Project{Name: "test", Classes: []string{"person"}}, nil)
	uploads := make([]project.NewImage, n)
	for i := range uploads {
		uploads[i] = project.NewImage{
			Name:   fmt.Sprintf("img-%d.jpg", i),
			URL:    fmt.Sprintf("/uploads/img-%d.jpg", i),
			Width:  1200,
			Height: 800,
		}
	}
	return s, s.AddImages(uploads)
}

func passthroughEncoder(ctx context.Context, img types.ProjectImage) (backend.Payload, error) {
	return backend.Payload{B64: "aGk=", MIME: "image/jpeg", Width: img.Width, Height: img.Height}, nil
}

func TestRunBatchLabelsEveryImage(t *testing.T) {
	s, _ := newStore(t, 3)
	o := NewOrchestrator(s, nil)

	var progress []int
	o.OnProgress = func(done, total int, imageID string) {
		if total != 3 {
			t.Errorf("progress total = %d", total)
		}
		progress = append(progress, done)
	}

	res, err := o.RunBatch(context.Background(), mock.NewClient(), mock.ModelVision, "Detect objects.", passthroughEncoder)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if res.Processed != 3 || res.Applied != 3 || res.Skipped != 0 || len(res.Failures) != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(progress) != 3 || progress[2] != 3 {
		t.Errorf("unexpected progress calls: %v", progress)
	}

	for _, img := range s.Project().Images {
		if img.Status != types.StatusLabeled {
			t.Errorf("image %s not labeled", img.Name)
		}
		if len(img.Annotations) != 1 {
			t.Errorf("image %s has %d annotations", img.Name, len(img.Annotations))
		}
		if img.Annotations[0].Source != mock.ModelVision {
			t.Errorf("annotation source = %q", img.Annotations[0].Source)
		}
	}
}

func TestRunBatchSkipsLabeledImages(t *testing.T) {
	s, ids := newStore(t, 2)
	o := NewOrchestrator(s, nil)

	first, err := o.RunBatch(context.Background(), mock.NewClient(), mock.ModelVision, "p", passthroughEncoder)
	if err != nil {
		t.Fatalf("first batch failed: %v", err)
	}
	if first.Processed != 2 {
		t.Fatalf("first batch processed %d", first.Processed)
	}

	// Rerunning must not touch already-labeled images.
	second, err := o.RunBatch(context.Background(), mock.NewClient(), mock.ModelVision, "p", passthroughEncoder)
	if err != nil {
		t.Fatalf("second batch failed: %v", err)
	}
	if second.Processed != 0 || second.Skipped != 2 || second.Applied != 0 {
		t.Errorf("rerun not idempotent: %+v", second)
	}
	for _, img := range s.Project().Images {
		if len(img.Annotations) != 1 {
			t.Errorf("image %s annotations doubled: %d", img.ID, len(img.Annotations))
		}
	}
	_ = ids
}

// emptyBackend answers every inference with zero detections.
type emptyBackend struct{}

func (emptyBackend) Kind() string { return "empty" }

func (emptyBackend) ListModels(ctx context.Context) ([]string, error) {
	return []string{"m"}, nil
}

func (emptyBackend) Infer(ctx context.Context, req backend.InferRequest) ([]types.Detection, error) {
	return nil, nil
}

func TestRunBatchRetriesImagesWithEmptyResults(t *testing.T) {
	s, _ := newStore(t, 2)
	o := NewOrchestrator(s, nil)

	first, err := o.RunBatch(context.Background(), emptyBackend{}, "m", "p", passthroughEncoder)
	if err != nil {
		t.Fatalf("first batch failed: %v", err)
	}
	if first.Processed != 2 || first.Applied != 0 {
		t.Errorf("unexpected first result: %+v", first)
	}
	for _, img := range s.Project().Images {
		if img.Status != types.StatusUnlabeled {
			t.Errorf("image %s marked %q after an empty result", img.Name, img.Status)
		}
	}

	// A rerun must pick the same images up again instead of skipping them.
	second, err := o.RunBatch(context.Background(), mock.NewClient(), mock.ModelVision, "p", passthroughEncoder)
	if err != nil {
		t.Fatalf("second batch failed: %v", err)
	}
	if second.Processed != 2 || second.Skipped != 0 || second.Applied != 2 {
		t.Errorf("rerun did not retry unlabeled images: %+v", second)
	}
}

func TestRunBatchRequiresModel(t *testing.T) {
	s, _ := newStore(t, 1)
	o := NewOrchestrator(s, nil)

	_, err := o.RunBatch(context.Background(), mock.NewClient(), "", "p", passthroughEncoder)
	if !errors.Is(err, backend.ErrNoModel) {
		t.Errorf("expected ErrNoModel, got %v", err)
	}
}

// blockingBackend parks Infer until released, so a second batch can be
// attempted while the first is in flight.
type blockingBackend struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingBackend) Kind() string { return "blocking" }

func (b *blockingBackend) ListModels(ctx context.Context) ([]string, error) {
	return []string{"m"}, nil
}

func (b *blockingBackend) Infer(ctx context.Context, req backend.InferRequest) ([]types.Detection, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return nil, nil
}

func TestRunBatchSingleFlight(t *testing.T) {
	s, _ := newStore(t, 1)
	o := NewOrchestrator(s, nil)

	bb := &blockingBackend{entered: make(chan struct{}), release: make(chan struct{})}
	done := make(chan error, 1)
	go func() {
		_, err := o.RunBatch(context.Background(), bb, "m", "p", passthroughEncoder)
		done <- err
	}()

	<-bb.entered
	if !o.Running() {
		t.Error("Running() should report true mid-batch")
	}
	_, err := o.RunBatch(context.Background(), mock.NewClient(), mock.ModelVision, "p", passthroughEncoder)
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	close(bb.release)
	if err := <-done; err != nil {
		t.Fatalf("first batch failed: %v", err)
	}
	if o.Running() {
		t.Error("Running() should reset after the batch")
	}

	// The flag is released even though the batch produced no detections.
	if _, err := o.RunBatch(context.Background(), mock.NewClient(), mock.ModelVision, "p", passthroughEncoder); err != nil {
		t.Errorf("follow-up batch failed: %v", err)
	}
}

// failingEncoder fails for one image id and succeeds for the rest.
func failingEncoder(failID string) Encoder {
	return func(ctx context.Context, img types.ProjectImage) (backend.Payload, error) {
		if img.ID == failID {
			return backend.Payload{}, errors.New("unreadable file")
		}
		return passthroughEncoder(ctx, img)
	}
}

func TestRunBatchContinuesPastFailures(t *testing.T) {
	s, ids := newStore(t, 3)
	o := NewOrchestrator(s, nil)

	res, err := o.RunBatch(context.Background(), mock.NewClient(), mock.ModelVision, "p", failingEncoder(ids[1]))
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if res.Processed != 2 || len(res.Failures) != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.Failures[0].ImageID != ids[1] {
		t.Errorf("wrong failed image: %+v", res.Failures[0])
	}

	imgs := s.Project().Images
	if imgs[0].Status != types.StatusLabeled || imgs[2].Status != types.StatusLabeled {
		t.Error("surviving images should be labeled")
	}
	if imgs[1].Status != types.StatusUnlabeled {
		t.Error("failed image should stay unlabeled")
	}
}

func TestRunBatchDiscardsStaleResults(t *testing.T) {
	s, ids := newStore(t, 2)
	o := NewOrchestrator(s, nil)

	// Remove the second image while its inference would be in flight.
	encode := func(ctx context.Context, img types.ProjectImage) (backend.Payload, error) {
		if img.ID == ids[1] {
			if err := s.RemoveImage(ids[1]); err != nil {
				t.Fatalf("RemoveImage failed: %v", err)
			}
		}
		return passthroughEncoder(ctx, img)
	}

	res, err := o.RunBatch(context.Background(), mock.NewClient(), mock.ModelVision, "p", encode)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if res.Stale != 1 || len(res.Failures) != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if n := len(s.Project().Images); n != 1 {
		t.Fatalf("expected 1 image left, got %d", n)
	}
}

func TestRunBatchHonorsCancellation(t *testing.T) {
	s, _ := newStore(t, 5)
	o := NewOrchestrator(s, nil)

	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	encode := func(c context.Context, img types.ProjectImage) (backend.Payload, error) {
		n++
		if n == 2 {
			cancel()
		}
		return passthroughEncoder(c, img)
	}

	_, err := o.RunBatch(ctx, mock.NewClient(), mock.ModelVision, "p", encode)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if n >= 5 {
		t.Errorf("batch should stop early, encoded %d images", n)
	}
}
