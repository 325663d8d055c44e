package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectConfig identifies the Google Cloud project used by Vertex providers.
type ProjectConfig struct {
	ID       string `yaml:"id"`
	Location string `yaml:"location"`
	KeyPath  string `yaml:"key_path"`
}

// PathsConfig locates the index and the per-item content files.
type PathsConfig struct {
	DataDir   string `yaml:"data_dir"`
	IndexPath string `yaml:"index_path"`
	TextDir   string `yaml:"text_dir"`
	ImageDir  string `yaml:"image_dir"`
	PDFPath   string `yaml:"pdf_path"`
}

// ChunkerConfig configures how page text is split into chunks.
type ChunkerConfig struct {
	ChunkSize     int `yaml:"chunk_size"`
	Overlap       int `yaml:"overlap"`
	MinChunkChars int `yaml:"min_chunk_chars"`
}

// OpenAIConfig holds configuration for OpenAI-compatible endpoints.
type OpenAIConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// AnthropicConfig holds configuration for the Anthropic generator.
type AnthropicConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// EmbedderConfig selects and configures the embedding provider.
type EmbedderConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	Dimension         int           `yaml:"dimension"`
	Workers           int           `yaml:"workers"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	TimeoutSecs       int           `yaml:"timeout_secs"`
	OpenAI            *OpenAIConfig `yaml:"openai,omitempty"`
}

// GeneratorConfig selects and configures the generative model.
type GeneratorConfig struct {
	Provider    string           `yaml:"provider"`
	Model       string           `yaml:"model"`
	TimeoutSecs int              `yaml:"timeout_secs"`
	OpenAI      *OpenAIConfig    `yaml:"openai,omitempty"`
	Anthropic   *AnthropicConfig `yaml:"anthropic,omitempty"`
}

// IndexConfig selects the index storage backend.
type IndexConfig struct {
	Backend string `yaml:"backend"`
}

// RetrievalConfig tunes query-time behaviour.
type RetrievalConfig struct {
	TopK                int `yaml:"top_k"`
	ContextPreviewChars int `yaml:"context_preview_chars"`
	SummarySentences    int `yaml:"summary_sentences"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Project   ProjectConfig   `yaml:"project"`
	Paths     PathsConfig     `yaml:"paths"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Generator GeneratorConfig `yaml:"generator"`
	Index     IndexConfig     `yaml:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Log       LogConfig       `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			applyEnvOverrides(cfg)
			applyConfigDefaults(cfg)
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/pdfrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/pdfrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnvOverrides(cfg)
	applyConfigDefaults(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate reports unknown provider or backend names.
func (c *AppConfig) Validate() error {
	switch c.Embedder.Provider {
	case "vertex", "openai", "hashing":
	default:
		return fmt.Errorf("unknown embedder provider: %q", c.Embedder.Provider)
	}
	switch c.Generator.Provider {
	case "vertex", "openai", "anthropic":
	default:
		return fmt.Errorf("unknown generator provider: %q", c.Generator.Provider)
	}
	switch c.Index.Backend {
	case "json", "sqlite":
	default:
		return fmt.Errorf("unknown index backend: %q", c.Index.Backend)
	}
	if c.Embedder.Dimension <= 0 {
		return fmt.Errorf("embedder dimension must be positive, got %d", c.Embedder.Dimension)
	}
	return nil
}

// EnsureDirs creates the index, text and image directories.
func (c *AppConfig) EnsureDirs() error {
	for _, dir := range []string{filepath.Dir(c.Paths.IndexPath), c.Paths.TextDir, c.Paths.ImageDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "pdfrag", "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	return &AppConfig{
		Project: ProjectConfig{Location: "us-central1"},
		Paths:   PathsConfig{DataDir: "static"},
		Chunker: ChunkerConfig{ChunkSize: 800, Overlap: 100, MinChunkChars: 10},
		Embedder: EmbedderConfig{
			Provider:  "vertex",
			Model:     "multimodalembedding@001",
			Dimension: 1408,
			Workers:   1,
		},
		Generator: GeneratorConfig{Provider: "vertex", Model: "gemini-1.5-flash"},
		Index:     IndexConfig{Backend: "json"},
		Retrieval: RetrievalConfig{TopK: 5, ContextPreviewChars: 500, SummarySentences: 3},
		Log:       LogConfig{Level: "info"},
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		cfg.Project.ID = v
	}
	if v := os.Getenv("GOOGLE_CLOUD_LOCATION"); v != "" {
		cfg.Project.Location = v
	}
	if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" && cfg.Project.KeyPath == "" {
		cfg.Project.KeyPath = v
	}
	if v := os.Getenv("PDF_FILE_PATH"); v != "" {
		cfg.Paths.PDFPath = v
	}
	if v := os.Getenv("PDFRAG_DATA_DIR"); v != "" {
		cfg.Paths.DataDir = v
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Project.Location == "" {
		cfg.Project.Location = "us-central1"
	}
	if cfg.Paths.DataDir == "" {
		cfg.Paths.DataDir = "static"
	}
	if cfg.Paths.IndexPath == "" {
		name := "rag_index.json"
		if cfg.Index.Backend == "sqlite" {
			name = "rag_index.db"
		}
		cfg.Paths.IndexPath = filepath.Join(cfg.Paths.DataDir, "index", name)
	}
	if cfg.Paths.TextDir == "" {
		cfg.Paths.TextDir = filepath.Join(cfg.Paths.DataDir, "text")
	}
	if cfg.Paths.ImageDir == "" {
		cfg.Paths.ImageDir = filepath.Join(cfg.Paths.DataDir, "images")
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 800
	}
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = 100
	}
	if cfg.Chunker.MinChunkChars == 0 {
		cfg.Chunker.MinChunkChars = 10
	}
	if cfg.Embedder.Provider == "" {
		cfg.Embedder.Provider = "vertex"
	}
	if cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 1408
	}
	if cfg.Embedder.Workers <= 0 {
		cfg.Embedder.Workers = 1
	}
	if cfg.Embedder.TimeoutSecs == 0 {
		cfg.Embedder.TimeoutSecs = 60
	}
	if cfg.Embedder.Provider == "vertex" && cfg.Embedder.Model == "" {
		cfg.Embedder.Model = "multimodalembedding@001"
	}
	if cfg.Embedder.Provider == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIConfig{}
		}
		applyOpenAIDefaults(cfg.Embedder.OpenAI, "text-embedding-3-small")
	}
	if cfg.Generator.Provider == "" {
		cfg.Generator.Provider = "vertex"
	}
	if cfg.Generator.TimeoutSecs == 0 {
		cfg.Generator.TimeoutSecs = 120
	}
	switch cfg.Generator.Provider {
	case "vertex":
		if cfg.Generator.Model == "" {
			cfg.Generator.Model = "gemini-1.5-flash"
		}
	case "openai":
		if cfg.Generator.OpenAI == nil {
			cfg.Generator.OpenAI = &OpenAIConfig{}
		}
		applyOpenAIDefaults(cfg.Generator.OpenAI, "gpt-4o-mini")
	case "anthropic":
		if cfg.Generator.Anthropic == nil {
			cfg.Generator.Anthropic = &AnthropicConfig{}
		}
		if cfg.Generator.Anthropic.APIKeyEnv == "" {
			cfg.Generator.Anthropic.APIKeyEnv = "ANTHROPIC_API_KEY"
		}
		if cfg.Generator.Anthropic.Model == "" {
			cfg.Generator.Anthropic.Model = "claude-3-5-sonnet-20241022"
		}
		if cfg.Generator.Anthropic.MaxTokens == 0 {
			cfg.Generator.Anthropic.MaxTokens = 1024
		}
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = "json"
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.ContextPreviewChars == 0 {
		cfg.Retrieval.ContextPreviewChars = 500
	}
	if cfg.Retrieval.SummarySentences == 0 {
		cfg.Retrieval.SummarySentences = 3
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func applyOpenAIDefaults(c *OpenAIConfig, model string) {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = 30
	}
}
