// Package lmstudio adapts a local LM Studio server to the backend
// capability interface through its OpenAI-compatible chat completion API.
package lmstudio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/OlegDiz/localflow/pkg/backend"
	"github.com/OlegDiz/localflow/pkg/types"
)

// Client talks to one local LM Studio server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// OpenAI-compatible message format.
type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []contentPart
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// NewClient creates a client for the given server URL; empty defaults to
// the standard local address.
func NewClient(rawURL string) (*Client, error) {
	if rawURL == "" {
		rawURL = backend.DefaultLMStudioURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(rawURL, "/"),
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}, nil
}

// Kind identifies this backend family.
func (c *Client) Kind() string { return "lmstudio" }

// ListModels fetches the ordered model ids from /v1/models.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	return backend.FetchModelList(ctx, c.httpClient, c.baseURL)
}

// Infer runs one zero-shot detection pass through /v1/chat/completions and
// scales the returned grid coordinates to the image's pixel space.
func (c *Client) Infer(ctx context.Context, req backend.InferRequest) ([]types.Detection, error) {
	if req.Model == "" {
		return nil, backend.ErrNoModel
	}

	mime := req.Image.MIME
	if mime == "" {
		mime = "image/jpeg"
	}

	content := []contentPart{
		{Type: "text", Text: req.Prompt + " " + backend.SystemPrompt},
	}
	if req.Image.B64 != "" {
		content = append(content, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: "data:" + mime + ";base64," + req.Image.B64},
		})
	}

	payload := chatCompletionRequest{
		Model:       req.Model,
		Messages:    []message{{Role: "user", Content: content}},
		Temperature: 0.2,
		MaxTokens:   2048,
	}

	respBody, err := c.sendRequest(ctx, "/v1/chat/completions", payload)
	if err != nil {
		return nil, err
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("parse chat response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in chat response")
	}

	raw := extractText(resp.Choices[0].Message.Content)
	return backend.ParseDetections(raw, req.Image.Width, req.Image.Height, req.Model), nil
}

func (c *Client) sendRequest(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request to %s: %w", c.baseURL, backend.ErrUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// extractText pulls the text out of a response message whose content may be
// a plain string or an array of typed parts.
func extractText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		for _, item := range v {
			part, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := part["text"].(string); ok && text != "" {
				return text
			}
		}
	}
	return ""
}
