// Package localflow provides local dataset curation for object-detection
// training data: an annotation store, an interactive bounding-box edit
// session, pluggable local vision-model backends, batch auto-labeling, and
// YOLO dataset export.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		"github.com/OlegDiz/localflow"
//		"github.com/OlegDiz/localflow/pkg/config"
//	)
//
//	func main() {
//		ws, err := localflow.New(config.Default(), nil)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		ctx := context.Background()
//		if _, err := ws.IngestDirectory(ctx, "./photos"); err != nil {
//			log.Fatal(err)
//		}
//
//		ws.SelectBackend(ctx, "ollama")
//		if _, err := ws.AutoLabel(ctx); err != nil {
//			log.Fatal(err)
//		}
//
//		path, err := ws.Export(ctx, "YOLOv8", "./dataset")
//		if err != nil {
//			log.Fatal(err)
//		}
//		log.Printf("dataset written to %s", path)
//	}
//
// The package consists of these main components:
//
// 1. Store (pkg/project): immutable project snapshots and all annotation mutation
// 2. Session (pkg/session): the pointer/keyboard edit state machine
// 3. Backends (pkg/backend): Ollama, LM Studio, and a deterministic mock
// 4. Orchestrator (pkg/labeling): batch auto-labeling over unlabeled images
// 5. Exporter (pkg/export): normalized dataset export through the boundary service
package localflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/OlegDiz/localflow/pkg/config"
	"github.com/OlegDiz/localflow/pkg/backend"
	"github.com/OlegDiz/localflow/pkg/backend/lmstudio"
	"github.com/OlegDiz/localflow/pkg/backend/mock"
	"github.com/OlegDiz/localflow/pkg/backend/ollama"
	"github.com/OlegDiz/localflow/pkg/export"
	"github.com/OlegDiz/localflow/pkg/ingest"
	"github.com/OlegDiz/localflow/pkg/labeling"
	"github.com/OlegDiz/localflow/pkg/overlay"
	"github.com/OlegDiz/localflow/pkg/project"
	"github.com/OlegDiz/localflow/pkg/session"
	"github.com/OlegDiz/localflow/pkg/types"
)

// Version of the localflow library
const Version = "1.0.0"

// Workspace wires the store, edit session, image library, backends,
// orchestrator, and exporter into one curation surface.
type Workspace struct {
	cfg    *config.Config
	logger *slog.Logger

	store        *project.Store
	session      *session.Session
	library      *ingest.Library
	orchestrator *labeling.Orchestrator
	exporter     *export.Client
	backends     map[string]backend.Backend

	mu       sync.Mutex
	provider string
	models   []string
}

// New creates a workspace from the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Workspace, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	library, err := ingest.NewLibrary(cfg.Library.UploadDir, logger)
	if err != nil {
		return nil, err
	}

	ollamaClient, err := ollama.NewClient(cfg.Backends.OllamaURL)
	if err != nil {
		return nil, fmt.Errorf("ollama backend: %w", err)
	}
	lmstudioClient, err := lmstudio.NewClient(cfg.Backends.LMStudioURL)
	if err != nil {
		return nil, fmt.Errorf("lmstudio backend: %w", err)
	}

	store := project.New(types.Project{Name: "untitled"}, logger)
	ws := &Workspace{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		session:      session.New(store, logger),
		library:      library,
		orchestrator: labeling.NewOrchestrator(store, logger),
		exporter:     export.NewClient(cfg.Export.ServiceURL, logger),
		backends: map[string]backend.Backend{
			"ollama":   ollamaClient,
			"lmstudio": lmstudioClient,
			"mock":     mock.NewClient(),
		},
	}

	if cfg.Backends.Provider != "auto" {
		ws.provider = cfg.Backends.Provider
	}
	return ws, nil
}

// Store exposes the annotation store.
func (ws *Workspace) Store() *project.Store { return ws.store }

// Session exposes the edit session.
func (ws *Workspace) Session() *session.Session { return ws.session }

// Library exposes the image library.
func (ws *Workspace) Library() *ingest.Library { return ws.library }

// Provider returns the currently selected backend kind, empty when none.
func (ws *Workspace) Provider() string {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.provider
}

// Models returns the model list cached by the last discovery.
func (ws *Workspace) Models() []string {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.models
}

// Preflight probes the configured providers and, when the provider is set
// to auto, selects the first healthy one. It returns name to health.
func (ws *Workspace) Preflight(ctx context.Context) map[string]bool {
	probes := []backend.Probe{
		backend.OllamaProbe(ws.cfg.Backends.OllamaURL),
		backend.LMStudioProbe(ws.cfg.Backends.LMStudioURL),
	}
	statuses := backend.ProbeAll(ctx, probes)

	if selected := backend.SelectProvider(ws.cfg.Backends.Provider, probes, statuses); selected != "" {
		ws.SelectBackend(ctx, selected)
	}
	return statuses
}

// SelectBackend switches the active backend and refreshes its model list.
// Discovery failure leaves an empty cached list rather than surfacing an
// error; the caller sees no models and can retry.
func (ws *Workspace) SelectBackend(ctx context.Context, kind string) []string {
	b, ok := ws.backends[kind]
	if !ok {
		ws.logger.Warn("unknown backend requested", "kind", kind)
		return nil
	}

	models, err := b.ListModels(ctx)
	if err != nil {
		ws.logger.Warn("model discovery failed", "backend", kind, "error", err)
		models = nil
	}

	ws.mu.Lock()
	ws.provider = kind
	ws.models = models
	ws.mu.Unlock()

	ws.logger.Info("backend selected", "kind", kind, "models", len(models))
	return models
}

// Backend returns the active backend instance.
func (ws *Workspace) Backend() (backend.Backend, error) {
	ws.mu.Lock()
	provider := ws.provider
	ws.mu.Unlock()

	b, ok := ws.backends[provider]
	if !ok {
		return nil, fmt.Errorf("no backend selected")
	}
	return b, nil
}

// AddFile stores one uploaded file in the library and registers it as a
// project image.
func (ws *Workspace) AddFile(filename string, data []byte) (string, error) {
	stored, err := ws.library.Store(filename, data)
	if err != nil {
		return "", err
	}
	ids := ws.store.AddImages([]project.NewImage{{
		Name:   stored.Name,
		URL:    stored.Path,
		Width:  stored.Width,
		Height: stored.Height,
	}})
	return ids[0], nil
}

// IngestDirectory pulls every decodable image under dir into the project.
func (ws *Workspace) IngestDirectory(ctx context.Context, dir string) ([]string, error) {
	stored, err := ws.library.IngestDir(dir)
	if err != nil {
		return nil, err
	}
	uploads := make([]project.NewImage, len(stored))
	for i, s := range stored {
		uploads[i] = project.NewImage{Name: s.Name, URL: s.Path, Width: s.Width, Height: s.Height}
	}
	return ws.store.AddImages(uploads), nil
}

// AutoLabel runs one batch over the project with the configured model and
// prompt. The model defaults to the first discovered one.
func (ws *Workspace) AutoLabel(ctx context.Context) (labeling.Result, error) {
	b, err := ws.Backend()
	if err != nil {
		return labeling.Result{}, err
	}

	model := ws.cfg.Labeling.Model
	if model == "" {
		ws.mu.Lock()
		if len(ws.models) > 0 {
			model = ws.models[0]
		}
		ws.mu.Unlock()
	}

	return ws.orchestrator.RunBatch(ctx, b, model, ws.cfg.Labeling.Prompt, ws.encode)
}

// encode prepares an image for inference and backfills its natural
// dimensions into the store once known.
func (ws *Workspace) encode(ctx context.Context, img types.ProjectImage) (backend.Payload, error) {
	payload, err := ingest.PrepareForModel(img.URL)
	if err != nil {
		return backend.Payload{}, err
	}
	if img.Width == 0 || img.Height == 0 {
		if err := ws.store.SetImageDimensions(img.ID, payload.Width, payload.Height); err != nil {
			ws.logger.Debug("dimension backfill skipped", "image", img.ID, "error", err)
		}
	}
	return payload, nil
}

// Export sends the current project state to the export boundary service.
func (ws *Workspace) Export(ctx context.Context, format, outputPath string) (string, error) {
	return ws.exporter.Export(ctx, ws.store.Project(), format, outputPath)
}

// RenderPreview rasterizes an image with its annotation overlay and saves
// it to outPath. Annotations below the configured threshold are omitted.
func (ws *Workspace) RenderPreview(imageID, outPath string) error {
	p := ws.store.Project()
	for _, img := range p.Images {
		if img.ID != imageID {
			continue
		}
		src, err := ingest.Load(img.URL)
		if err != nil {
			return fmt.Errorf("load %s: %w", img.Name, err)
		}
		rendered := overlay.Render(src, img.Annotations, ws.cfg.Labeling.Threshold)
		return ingest.SavePNG(rendered, outPath)
	}
	return fmt.Errorf("render preview: %w", project.ErrImageNotFound)
}
