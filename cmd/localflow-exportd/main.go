// localflow-exportd is the export boundary service: it receives a
// project's annotation state over HTTP and materializes the YOLO dataset
// layout on local disk.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/OlegDiz/localflow/pkg/export"
	"github.com/OlegDiz/localflow/pkg/export/yolo"
	"github.com/OlegDiz/localflow/pkg/types"
)

type server struct {
	logger *slog.Logger
	opts   yolo.Options
}

type exportRequest struct {
	Path    string               `json:"path"`
	Classes []string             `json:"classes"`
	Images  []types.ProjectImage `json:"images"`
	Format  string               `json:"format"`
}

type exportResponse struct {
	Path string `json:"path"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func main() {
	var addr string
	var ratio float64
	var seed int64
	var archive, verbose bool

	flag.StringVar(&addr, "addr", ":8000", "listen address")
	flag.Float64Var(&ratio, "ratio", yolo.DefaultTrainRatio, "train split fraction (0-1]")
	flag.Int64Var(&seed, "seed", 42, "split shuffle seed")
	flag.BoolVar(&archive, "zip", false, "also zip each exported dataset")
	flag.BoolVar(&verbose, "v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	s := &server{
		logger: logger.With("component", "exportd"),
		opts:   yolo.Options{TrainRatio: ratio, Seed: seed, Archive: archive},
	}

	logger.Info("export service listening", "addr", addr)
	if err := http.ListenAndServe(addr, s.routes()); err != nil {
		log.Fatal(err)
	}
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/export", s.handleExport)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "localflow-exportd",
	})
}

func (s *server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "path is required"})
		return
	}
	if req.Format != types.FormatYOLOv8 && req.Format != types.FormatYOLOv11 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "format must be YOLOv8 or YOLOv11"})
		return
	}

	p := types.Project{Classes: req.Classes, Images: req.Images}
	classes, err := export.Validate(p)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	s.logger.Info("export started",
		"path", req.Path, "format", req.Format,
		"classes", len(classes), "images", len(req.Images))

	path, err := yolo.Write(req.Path, p, classes, req.Format, s.opts, s.logger)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, export.ErrExportFailed) {
			status = http.StatusBadRequest
		}
		s.logger.Error("export failed", "path", req.Path, "error", err)
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, exportResponse{Path: path})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
