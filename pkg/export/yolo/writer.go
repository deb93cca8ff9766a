// Package yolo materializes a YOLO-style dataset on disk: an images/ and
// labels/ tree split into train and valid, plus a data.yaml manifest. The
// boxes are written in center-form normalized coordinates, one annotation
// per label line.
package yolo

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/OlegDiz/localflow/internal/utils"
	"github.com/OlegDiz/localflow/pkg/export"
	"github.com/OlegDiz/localflow/pkg/types"
)

// DefaultTrainRatio is the fraction of images assigned to the train split.
const DefaultTrainRatio = 0.8

// Options control the dataset layout.
type Options struct {
	// TrainRatio is the train-split fraction; zero selects the default.
	TrainRatio float64
	// Seed drives the split shuffle so layouts are reproducible.
	Seed int64
	// Archive additionally zips the dataset directory.
	Archive bool
}

// manifest is the data.yaml shape Ultralytics trainers consume.
type manifest struct {
	Path   string   `yaml:"path"`
	Train  string   `yaml:"train"`
	Val    string   `yaml:"val"`
	NC     int      `yaml:"nc"`
	Names  []string `yaml:"names"`
	Format string   `yaml:"format"`
}

// Write lays the dataset out under root and returns the path of the final
// artifact: root itself, or the zip archive when requested. Images whose
// source file cannot be found still get their label file; the trainer-side
// image is simply missing and logged.
func Write(root string, p types.Project, classes []string, format string, opts Options, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ratio := opts.TrainRatio
	if ratio <= 0 || ratio > 1 {
		ratio = DefaultTrainRatio
	}

	index := export.ClassIndex(classes)
	for _, sub := range []string{
		filepath.Join("images", "train"), filepath.Join("images", "valid"),
		filepath.Join("labels", "train"), filepath.Join("labels", "valid"),
	} {
		if err := utils.EnsureDir(filepath.Join(root, sub)); err != nil {
			return "", fmt.Errorf("create dataset dir %s: %w", sub, err)
		}
	}

	train, val := split(len(p.Images), ratio, opts.Seed)
	splits := map[string][]int{"train": train, "valid": val}

	for name, members := range splits {
		for _, i := range members {
			img := p.Images[i]
			records, err := export.ImageRecords(img, index)
			if err != nil {
				return "", err
			}
			if err := writeEntry(root, name, img, records, logger); err != nil {
				return "", err
			}
		}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = root
	}
	m := manifest{
		Path:   absRoot,
		Train:  "images/train",
		Val:    "images/valid",
		NC:     len(classes),
		Names:  classes,
		Format: format,
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal data.yaml: %w", err)
	}
	if err := os.WriteFile(filepath.Join(root, "data.yaml"), data, 0644); err != nil {
		return "", fmt.Errorf("write data.yaml: %w", err)
	}

	logger.Info("dataset written",
		"root", root, "format", format,
		"train", len(train), "valid", len(val), "classes", len(classes))

	if !opts.Archive {
		return root, nil
	}
	archivePath := root + ".zip"
	if err := archiveDir(root, archivePath); err != nil {
		return "", fmt.Errorf("archive dataset: %w", err)
	}
	return archivePath, nil
}

// split deals image indices into train and val with a seeded shuffle. The
// train split always gets at least one image when any exist.
func split(n int, ratio float64, seed int64) (train, val []int) {
	if n == 0 {
		return nil, nil
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })

	cut := int(float64(n) * ratio)
	if cut < 1 {
		cut = 1
	}
	if cut > n {
		cut = n
	}
	return order[:cut], order[cut:]
}

// writeEntry writes one image's label file and copies its source file into
// the split.
func writeEntry(root, splitName string, img types.ProjectImage, records []export.Record, logger *slog.Logger) error {
	safe := utils.SanitizeFilename(img.Name)
	stem := strings.TrimSuffix(safe, filepath.Ext(safe))

	var lines strings.Builder
	for _, r := range records {
		fmt.Fprintf(&lines, "%d %.6f %.6f %.6f %.6f\n", r.Class, r.Box.X, r.Box.Y, r.Box.W, r.Box.H)
	}
	labelPath := filepath.Join(root, "labels", splitName, stem+".txt")
	if err := os.WriteFile(labelPath, []byte(lines.String()), 0644); err != nil {
		return fmt.Errorf("write label file for %s: %w", img.Name, err)
	}

	if !utils.FileExists(img.URL) {
		logger.Warn("image source missing, label written without image", "image", img.Name, "url", img.URL)
		return nil
	}
	dst := filepath.Join(root, "images", splitName, safe)
	if err := utils.CopyFile(img.URL, dst); err != nil {
		return fmt.Errorf("copy image %s: %w", img.Name, err)
	}
	return nil
}

// archiveDir zips the dataset directory with paths relative to its parent.
func archiveDir(dir, archivePath string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	base := filepath.Dir(dir)

	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(w, in)
		return err
	})
	if err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return out.Close()
}
