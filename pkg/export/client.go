package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/OlegDiz/localflow/pkg/types"
)

// DefaultServiceURL is where the export daemon listens locally.
const DefaultServiceURL = "http://127.0.0.1:8000"

const requestTimeout = 60 * time.Second

// Client talks to the export boundary service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an export client; an empty URL selects the local
// default.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultServiceURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger.With("component", "export"),
	}
}

// exportRequest is the boundary wire body.
type exportRequest struct {
	Path    string               `json:"path"`
	Classes []string             `json:"classes"`
	Images  []types.ProjectImage `json:"images"`
	Format  string               `json:"format"`
}

type exportResponse struct {
	Path string `json:"path"`
}

// Export validates the project, then asks the boundary service to
// materialize the dataset at outputPath. It returns the path the service
// actually wrote. Every failure mode wraps ErrExportFailed.
func (c *Client) Export(ctx context.Context, p types.Project, format, outputPath string) (string, error) {
	if format != types.FormatYOLOv8 && format != types.FormatYOLOv11 {
		return "", fmt.Errorf("%w: unsupported format %q", ErrExportFailed, format)
	}

	classes, err := Validate(p)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(exportRequest{
		Path:    outputPath,
		Classes: classes,
		Images:  p.Images,
		Format:  format,
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrExportFailed, err)
	}

	c.logger.Info("export requested",
		"format", format, "path", outputPath,
		"classes", len(classes), "images", len(p.Images))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/export", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrExportFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExportFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: service status %d: %s", ErrExportFailed, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out exportResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: parse response: %v", ErrExportFailed, err)
	}

	c.logger.Info("export completed", "path", out.Path)
	return out.Path, nil
}
