package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/OlegDiz/localflow"
	"github.com/OlegDiz/localflow/pkg/config"
)

func main() {
	var dir, provider, url, model, prompt, classes string
	var exportPath, format, configPath string
	var threshold float64
	var previews, verbose bool

	flag.StringVar(&dir, "dir", "", "directory of images to ingest (jpg/png/webp)")
	flag.StringVar(&provider, "backend", "", "backend to use: ollama, lmstudio, mock, or auto")
	flag.StringVar(&url, "url", "", "backend server URL (overrides the config default)")
	flag.StringVar(&model, "model", "", "model id (default: first discovered)")
	flag.StringVar(&prompt, "prompt", "", "detection prompt sent to the model")
	flag.StringVar(&classes, "classes", "", "comma-separated class vocabulary")
	flag.StringVar(&exportPath, "export", "", "export the dataset to this path after labeling")
	flag.StringVar(&format, "format", "", "export format: YOLOv8|YOLOv11")
	flag.StringVar(&configPath, "config", "", "config file path (JSON)")
	flag.Float64Var(&threshold, "threshold", -1, "confidence threshold for previews (0-1)")
	flag.BoolVar(&previews, "previews", false, "write annotation overlay previews next to the upload dir")
	flag.BoolVar(&verbose, "v", false, "debug logging")

	flag.Parse()
	if dir == "" {
		log.Fatalf("usage: %s -dir images/ [-backend ollama|lmstudio|mock|auto] [-model id] [-classes person,helmet] [-export out/ -format YOLOv8]", filepath.Base(os.Args[0]))
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := loadConfig(configPath)
	cfg.ApplyEnv()
	if provider != "" {
		cfg.Backends.Provider = provider
	}
	if url != "" {
		cfg.Backends.OllamaURL = url
		cfg.Backends.LMStudioURL = url
	}
	if model != "" {
		cfg.Labeling.Model = model
	}
	if prompt != "" {
		cfg.Labeling.Prompt = prompt
	}
	if threshold >= 0 {
		cfg.Labeling.Threshold = threshold
	}
	if format != "" {
		cfg.Export.Format = format
	}

	ws, err := localflow.New(cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()

	for _, name := range strings.Split(classes, ",") {
		if name = strings.TrimSpace(name); name != "" {
			ws.Store().AddClass(name)
		}
	}

	ids, err := ws.IngestDirectory(ctx, dir)
	if err != nil {
		log.Fatal(err)
	}
	if len(ids) == 0 {
		log.Fatalf("no images found under %s", dir)
	}
	fmt.Printf("Ingested %d images\n", len(ids))

	statuses := ws.Preflight(ctx)
	for name, healthy := range statuses {
		state := "down"
		if healthy {
			state = "healthy"
		}
		fmt.Printf("Provider %-9s %s\n", name, state)
	}
	if ws.Provider() == "" {
		log.Fatal("no healthy backend available; pass -backend mock for offline use")
	}
	fmt.Printf("Using backend %s with %d models\n", ws.Provider(), len(ws.Models()))

	result, err := ws.AutoLabel(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Labeled %d images (%d skipped, %d annotations, %d dropped)\n",
		result.Processed, result.Skipped, result.Applied, result.Dropped)
	for _, f := range result.Failures {
		fmt.Printf("  failed: %s: %v\n", f.Name, f.Err)
	}

	if previews {
		writePreviews(ws)
	}

	if exportPath != "" {
		path, err := ws.Export(ctx, cfg.Export.Format, exportPath)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Dataset exported to %s\n", path)
	}
}

func loadConfig(path string) *config.Config {
	if path == "" {
		return config.Default()
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

func writePreviews(ws *localflow.Workspace) {
	outDir := ws.Library().Dir() + "_previews"
	for _, img := range ws.Store().Project().Images {
		if len(img.Annotations) == 0 {
			continue
		}
		stem := strings.TrimSuffix(img.Name, filepath.Ext(img.Name))
		out := filepath.Join(outDir, stem+"_overlay.png")
		if err := ws.RenderPreview(img.ID, out); err != nil {
			fmt.Printf("  preview failed: %s: %v\n", img.Name, err)
			continue
		}
		fmt.Printf("Preview written: %s\n", out)
	}
}
