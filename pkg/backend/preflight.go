package backend

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Default local server addresses.
const (
	DefaultOllamaURL   = "http://127.0.0.1:11434"
	DefaultLMStudioURL = "http://127.0.0.1:1234"
)

const probeTimeout = 5 * time.Second

// Probe describes one provider health check: a GET against Path that is
// healthy when it answers 2xx with a JSON content type.
type Probe struct {
	Name    string
	BaseURL string
	Path    string
}

// OllamaProbe is the health probe for a local Ollama server.
func OllamaProbe(baseURL string) Probe {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	return Probe{Name: "ollama", BaseURL: strings.TrimSuffix(baseURL, "/"), Path: "/api/tags"}
}

// LMStudioProbe is the health probe for a local LM Studio server.
func LMStudioProbe(baseURL string) Probe {
	if baseURL == "" {
		baseURL = DefaultLMStudioURL
	}
	return Probe{Name: "lmstudio", BaseURL: strings.TrimSuffix(baseURL, "/"), Path: "/v1/models"}
}

// ProbeAll checks every provider concurrently and returns name → healthy.
// Probing never fails as a whole: an unreachable provider is simply down.
func ProbeAll(ctx context.Context, probes []Probe) map[string]bool {
	results := make([]bool, len(probes))

	g, ctx := errgroup.WithContext(ctx)
	for i, p := range probes {
		g.Go(func() error {
			results[i] = probeOne(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	statuses := make(map[string]bool, len(probes))
	for i, p := range probes {
		statuses[p.Name] = results[i]
	}
	return statuses
}

func probeOne(ctx context.Context, p Probe) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+p.Path, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300 &&
		strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json")
}

// SelectProvider picks the provider to use. An explicit preference wins;
// otherwise the first healthy provider in probe order is chosen. The empty
// string means nothing is reachable.
func SelectProvider(preferred string, probes []Probe, statuses map[string]bool) string {
	if preferred != "" && preferred != "auto" {
		return preferred
	}
	for _, p := range probes {
		if statuses[p.Name] {
			return p.Name
		}
	}
	return ""
}
