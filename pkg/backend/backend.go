// Package backend defines the capability interface for local vision-model
// servers: model discovery and zero-shot detection inference. Concrete
// adapters live in the ollama, lmstudio, and mock subpackages; this package
// holds the shared wire types, the OpenAI-compatible model listing, the
// model-output parser, and provider preflight probing.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/OlegDiz/localflow/pkg/types"
)

// Domain errors for backend operations.
var (
	// ErrUnavailable marks a discovery or inference call that could not
	// reach the local server or got a non-success status. Callers treat
	// the model list as empty on discovery failure rather than surfacing
	// the error into the UI.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrNoModel marks an inference attempt without a selected model.
	ErrNoModel = errors.New("no model selected")
)

// SystemPrompt steers vision models toward parseable output.
const SystemPrompt = "You are a vision assistant. Return bounding boxes in JSON format."

// Payload is an encoded image ready to send to a model, together with the
// natural dimensions needed to scale returned coordinates back to pixels.
type Payload struct {
	B64    string
	MIME   string
	Width  int
	Height int
}

// InferRequest is one inference call against a selected model.
type InferRequest struct {
	Image  Payload
	Prompt string
	Model  string
}

// Backend is a local model server capable of listing its models and running
// zero-shot detection inference.
type Backend interface {
	// Kind identifies the backend family ("ollama", "lmstudio", "mock").
	Kind() string

	// ListModels returns the ordered model identifiers the server exposes.
	// It fails with ErrUnavailable when the server cannot be reached or
	// responds with a non-success status; repeated calls simply refresh
	// the list and never cancel in-flight inference.
	ListModels(ctx context.Context) ([]string, error)

	// Infer runs one detection pass and returns predictions with the
	// bounding boxes converted to image-pixel space and the source set
	// to the model identifier.
	Infer(ctx context.Context, req InferRequest) ([]types.Detection, error)
}

// openAIModelList is the GET /v1/models response shape shared by Ollama
// and LM Studio in their OpenAI-compatible mode.
type openAIModelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

const discoveryTimeout = 30 * time.Second

// FetchModelList queries {baseURL}/v1/models and returns the ordered model
// ids. Network failures and non-2xx statuses are reported as
// ErrUnavailable.
func FetchModelList(ctx context.Context, client *http.Client, baseURL string) ([]string, error) {
	if client == nil {
		client = &http.Client{Timeout: discoveryTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/models", nil)
	if err != nil {
		return nil, fmt.Errorf("build model list request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list models from %s: %w", baseURL, ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("list models from %s: status %d: %w", baseURL, resp.StatusCode, ErrUnavailable)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read model list: %w", err)
	}

	var list openAIModelList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("parse model list: %w", err)
	}

	models := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		if m.ID != "" {
			models = append(models, m.ID)
		}
	}
	return models, nil
}
