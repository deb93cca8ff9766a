package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the application configuration
type Config struct {
	Backends BackendsConfig `json:"backends"`
	Labeling LabelingConfig `json:"labeling"`
	Export   ExportConfig   `json:"export"`
	Library  LibraryConfig  `json:"library"`
}

// BackendsConfig holds the local model server endpoints
type BackendsConfig struct {
	// Provider selects the backend: "ollama", "lmstudio", "mock", or
	// "auto" to pick the first healthy one.
	Provider    string `json:"provider"`
	OllamaURL   string `json:"ollama_url"`
	LMStudioURL string `json:"lmstudio_url"`
}

// LabelingConfig holds batch auto-labeling defaults
type LabelingConfig struct {
	Model     string  `json:"model"`
	Prompt    string  `json:"prompt"`
	Threshold float64 `json:"threshold"`
}

// ExportConfig holds dataset export settings
type ExportConfig struct {
	ServiceURL string  `json:"service_url"`
	Format     string  `json:"format"`
	TrainRatio float64 `json:"train_ratio"`
	Seed       int64   `json:"seed"`
}

// LibraryConfig holds the upload store location
type LibraryConfig struct {
	UploadDir string `json:"upload_dir"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Backends: BackendsConfig{
			Provider:    "auto",
			OllamaURL:   "http://127.0.0.1:11434",
			LMStudioURL: "http://127.0.0.1:1234",
		},
		Labeling: LabelingConfig{
			Prompt:    "Detect all objects in this image.",
			Threshold: 0.0,
		},
		Export: ExportConfig{
			ServiceURL: "http://127.0.0.1:8000",
			Format:     "YOLOv8",
			TrainRatio: 0.8,
			Seed:       42,
		},
		Library: LibraryConfig{
			UploadDir: "./uploads",
		},
	}
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides settings from the environment. Variables follow the
// conventions of the local model servers themselves plus LOCALFLOW_* for
// our own endpoints.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.Backends.Provider = v
	}
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		c.Backends.OllamaURL = v
	}
	if v := os.Getenv("LMSTUDIO_BASE_URL"); v != "" {
		c.Backends.LMStudioURL = v
	}
	if v := os.Getenv("LOCALFLOW_EXPORT_URL"); v != "" {
		c.Export.ServiceURL = v
	}
	if v := os.Getenv("LOCALFLOW_UPLOAD_DIR"); v != "" {
		c.Library.UploadDir = v
	}
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Backends.Provider {
	case "auto", "ollama", "lmstudio", "mock":
	default:
		return fmt.Errorf("backends.provider must be auto, ollama, lmstudio, or mock")
	}

	if c.Backends.OllamaURL == "" || c.Backends.LMStudioURL == "" {
		return fmt.Errorf("backend URLs cannot be empty")
	}

	if c.Labeling.Threshold < 0 || c.Labeling.Threshold > 1 {
		return fmt.Errorf("labeling.threshold must be between 0 and 1")
	}

	switch c.Export.Format {
	case "YOLOv8", "YOLOv11":
	default:
		return fmt.Errorf("export.format must be YOLOv8 or YOLOv11")
	}

	if c.Export.TrainRatio <= 0 || c.Export.TrainRatio > 1 {
		return fmt.Errorf("export.train_ratio must be in (0, 1]")
	}

	if c.Library.UploadDir == "" {
		return fmt.Errorf("library.upload_dir cannot be empty")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "localflow", "config.json")
}
