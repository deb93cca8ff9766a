// Package ollama adapts a local Ollama server to the backend capability
// interface. Discovery goes through the OpenAI-compatible /v1/models
// endpoint; inference uses the Ollama API client against /api/generate.
package ollama

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/OlegDiz/localflow/pkg/backend"
	"github.com/OlegDiz/localflow/pkg/types"
)

const inferTimeout = 120 * time.Second

// Client talks to one local Ollama server.
type Client struct {
	baseURL string
	api     *api.Client
	http    *http.Client
}

// NewClient creates a client for the given server URL; empty defaults to
// the standard local address.
func NewClient(rawURL string) (*Client, error) {
	if rawURL == "" {
		rawURL = backend.DefaultOllamaURL
	}
	rawURL = strings.TrimSuffix(rawURL, "/")

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama URL: %w", err)
	}
	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}

	return &Client{
		baseURL: rawURL,
		api:     api.NewClient(base, http.DefaultClient),
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Kind identifies this backend family.
func (c *Client) Kind() string { return "ollama" }

// ListModels fetches the ordered model ids from /v1/models.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	return backend.FetchModelList(ctx, c.http, c.baseURL)
}

// Infer runs one zero-shot detection pass through /api/generate and scales
// the returned grid coordinates to the image's pixel space.
func (c *Client) Infer(ctx context.Context, req backend.InferRequest) ([]types.Detection, error) {
	if req.Model == "" {
		return nil, backend.ErrNoModel
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inferTimeout)
		defer cancel()
	}

	imgBytes, err := base64.StdEncoding.DecodeString(req.Image.B64)
	if err != nil {
		return nil, fmt.Errorf("decode image payload: %w", err)
	}

	stream := false
	genReq := &api.GenerateRequest{
		Model: req.Model,
		// The detection instructions ride along in the prompt as well as
		// the system field; some vision models ignore one of the two.
		Prompt: req.Prompt + " " + backend.SystemPrompt,
		System: backend.SystemPrompt,
		Stream: &stream,
		Images: []api.ImageData{api.ImageData(imgBytes)},
		Options: map[string]any{
			"num_gpu": -1,
		},
	}

	var sb strings.Builder
	err = c.api.Generate(ctx, genReq, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama generate: %w", err)
	}

	return backend.ParseDetections(sb.String(), req.Image.Width, req.Image.Height, req.Model), nil
}
