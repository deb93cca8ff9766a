// Package ingest manages the local image library: it accepts uploaded or
// directory-scanned files, captures their natural pixel dimensions, and
// prepares encoded payloads for vision-model inference.
package ingest

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"

	"github.com/OlegDiz/localflow/internal/utils"
	"github.com/OlegDiz/localflow/pkg/backend"
)

// Model transfer settings: larger images are downscaled before encoding so
// payloads stay small; coordinates are unaffected because models answer on
// a relative grid.
const (
	MaxModelDim = 1024
	JPEGQuality = 85
)

// Stored describes one file accepted into the library. Width and Height
// are zero when the file could not be decoded; callers fall back to the
// placeholder natural size.
type Stored struct {
	Name   string
	Path   string
	Width  int
	Height int
}

// Library is the on-disk upload store.
type Library struct {
	dir    string
	logger *slog.Logger
}

// NewLibrary creates a library rooted at dir, creating it if needed.
func NewLibrary(dir string, logger *slog.Logger) (*Library, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Library{dir: dir, logger: logger.With("component", "ingest")}, nil
}

// Dir returns the library's root directory.
func (l *Library) Dir() string { return l.dir }

// Store writes an uploaded file into the library under a collision-free
// name and reports its decoded dimensions. An undecodable file is still
// stored; its dimensions stay zero until something can decode it.
func (l *Library) Store(filename string, data []byte) (Stored, error) {
	name := uuid.NewString()[:8] + "_" + utils.SanitizeFilename(filename)
	path := filepath.Join(l.dir, name)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return Stored{}, fmt.Errorf("store upload %s: %w", filename, err)
	}

	w, h, err := DecodeDimensions(data)
	if err != nil {
		l.logger.Warn("stored file not decodable yet", "file", name, "error", err)
	}
	return Stored{Name: name, Path: path, Width: w, Height: h}, nil
}

// IngestDir copies every decodable image under dir into the library.
func (l *Library) IngestDir(dir string) ([]Stored, error) {
	paths, err := utils.ListImageFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	stored := make([]Stored, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			l.logger.Warn("skipping unreadable file", "path", p, "error", err)
			continue
		}
		s, err := l.Store(filepath.Base(p), data)
		if err != nil {
			return stored, err
		}
		stored = append(stored, s)
	}
	l.logger.Info("directory ingested", "dir", dir, "files", len(stored))
	return stored, nil
}

// DecodeDimensions reads the natural pixel size from encoded image bytes,
// falling back to an explicit WebP header parse for files the registered
// decoders reject.
func DecodeDimensions(data []byte) (int, int, error) {
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		return cfg.Width, cfg.Height, nil
	}
	if cfg, err := webp.DecodeConfig(bytes.NewReader(data)); err == nil {
		return cfg.Width, cfg.Height, nil
	}
	return 0, 0, fmt.Errorf("unknown or unsupported image format")
}

// Load decodes an image file, trying the registered decoders first and an
// explicit WebP decode as fallback.
func Load(path string) (image.Image, error) {
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.HasSuffix(strings.ToLower(path), ".webp") {
		if img, err := webp.Decode(f); err == nil {
			return img, nil
		}
		if _, err := f.Seek(0, 0); err != nil {
			return nil, err
		}
	}
	if img, _, err := image.Decode(f); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("image: unknown format for %s", path)
}

// SavePNG writes an image to disk as PNG, creating the directory if
// needed.
func SavePNG(img image.Image, path string) error {
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// PrepareForModel loads an image file and encodes it for transmission:
// downscaled to MaxModelDim on the long side, JPEG-compressed, base64.
// The payload carries the natural dimensions so returned coordinates are
// scaled to the original pixel space.
func PrepareForModel(path string) (backend.Payload, error) {
	img, err := Load(path)
	if err != nil {
		return backend.Payload{}, fmt.Errorf("load %s: %w", path, err)
	}

	bounds := img.Bounds()
	naturalW, naturalH := bounds.Dx(), bounds.Dy()

	if naturalW > MaxModelDim || naturalH > MaxModelDim {
		if naturalW >= naturalH {
			img = imaging.Resize(img, MaxModelDim, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, MaxModelDim, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return backend.Payload{}, fmt.Errorf("encode %s: %w", path, err)
	}

	return backend.Payload{
		B64:    base64.StdEncoding.EncodeToString(buf.Bytes()),
		MIME:   "image/jpeg",
		Width:  naturalW,
		Height: naturalH,
	}, nil
}
