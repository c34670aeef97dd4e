// Package config provides configuration loading and structs for ragprobe.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/ragprobe/internal/errdefs"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application. It is loaded once and
// treated as read-only afterwards; components receive the sub-structs they need.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Data       DataConfig       `yaml:"data"`
	Storage    StorageConfig    `yaml:"storage"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Vector     VectorConfig     `yaml:"vector"`
	Qdrant     QdrantConfig     `yaml:"qdrant"`
	LLM        LLMConfig        `yaml:"llm"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Redis      RedisConfig      `yaml:"redis"`
	Experiment ExperimentConfig `yaml:"experiment"`
	Server     ServerConfig     `yaml:"server"`
}

// DataConfig holds the knowledge directory scanned by ingestion.
type DataConfig struct {
	Dir        string   `yaml:"dir"`
	Extensions []string `yaml:"extensions"`
}

// StorageConfig holds paths for the tracker ledger and local indices.
type StorageConfig struct {
	TrackerPath      string `yaml:"tracker_path"`
	IndexPath        string `yaml:"index_path"`
	KeywordIndexPath string `yaml:"keyword_index_path"`
}

// ChunkingConfig holds splitter settings, measured in characters.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// RetrievalConfig holds retrieval settings for the pipeline under test.
type RetrievalConfig struct {
	Mode           string  `yaml:"mode"` // semantic, keyword, or hybrid
	TopK           int     `yaml:"top_k"`
	KeywordWeight  float64 `yaml:"keyword_weight"`
	SemanticWeight float64 `yaml:"semantic_weight"`
	Collection     string  `yaml:"collection"`
}

// VectorConfig selects the vector store backend.
type VectorConfig struct {
	Backend string `yaml:"backend"` // memory or qdrant
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	UseTLS    bool   `yaml:"use_tls"`
	APIKeyEnv string `yaml:"api_key_env"`
	PoolSize  int    `yaml:"pool_size"`
}

// LLMConfig holds the chat model used for answering and question generation.
type LLMConfig struct {
	Provider          string        `yaml:"provider"` // openai, ollama, or gemini
	Model             string        `yaml:"model"`
	Temperature       float32       `yaml:"temperature"`
	MaxTokens         int           `yaml:"max_tokens"`
	BaseURL           string        `yaml:"base_url"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// EmbeddingConfig holds the catalog of selectable embedding models and the query cache.
type EmbeddingConfig struct {
	Models    map[string]EmbeddingModel `yaml:"models"`
	Cache     string                    `yaml:"cache"` // memory, redis, or none
	CacheSize int                       `yaml:"cache_size"`
}

// EmbeddingModel describes one selectable embedding model. Model is the
// embedding-model identity written to the ledger and the retrieval index.
type EmbeddingModel struct {
	Provider   string `yaml:"provider"` // openai, ollama, gemini, onnx, or mock
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BaseURL    string `yaml:"base_url"`
	APIKeyEnv  string `yaml:"api_key_env"`
	ModelPath  string `yaml:"model_path"`
	MaxTokens  int    `yaml:"max_tokens"`
}

// RedisConfig holds Redis settings for the shared embedding cache.
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	DB          int           `yaml:"db"`
	PasswordEnv string        `yaml:"password_env"`
	TTL         time.Duration `yaml:"ttl"`
}

// ExperimentConfig holds defaults for the experiment driver.
type ExperimentConfig struct {
	Count    int   `yaml:"count"`
	Seed     int64 `yaml:"seed"`
	Resample bool  `yaml:"resample"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Load reads and parses the config file at path, applies defaults, expands paths, and validates.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Seeded so that an explicit chunking.overlap of 0 survives ApplyDefaults.
	cfg := Config{Chunking: ChunkingConfig{Size: DefaultChunkSize, Overlap: DefaultChunkOverlap}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	expandPaths(&cfg, filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the default configuration with relative paths resolved against baseDir.
func Default(baseDir string) *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	expandPaths(&cfg, baseDir)
	return &cfg
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate reports configuration errors wrapped with errdefs.ErrConfig.
func (c *Config) Validate() error {
	switch {
	case c.Chunking.Size <= 0:
		return fmt.Errorf("%w: chunking.size must be positive", errdefs.ErrConfig)
	case c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size:
		return fmt.Errorf("%w: chunking.overlap must be in [0, size)", errdefs.ErrConfig)
	case c.Retrieval.TopK <= 0:
		return fmt.Errorf("%w: retrieval.top_k must be positive", errdefs.ErrConfig)
	case c.Experiment.Count <= 0:
		return fmt.Errorf("%w: experiment.count must be positive", errdefs.ErrConfig)
	}
	if !oneOf(c.Retrieval.Mode, "semantic", "keyword", "hybrid") {
		return fmt.Errorf("%w: unknown retrieval.mode %q", errdefs.ErrConfig, c.Retrieval.Mode)
	}
	if !oneOf(c.Vector.Backend, "memory", "qdrant") {
		return fmt.Errorf("%w: unknown vector.backend %q", errdefs.ErrConfig, c.Vector.Backend)
	}
	if !oneOf(c.LLM.Provider, "openai", "ollama", "gemini") {
		return fmt.Errorf("%w: unknown llm.provider %q", errdefs.ErrConfig, c.LLM.Provider)
	}
	if !oneOf(c.Embedding.Cache, "memory", "redis", "none") {
		return fmt.Errorf("%w: unknown embedding.cache %q", errdefs.ErrConfig, c.Embedding.Cache)
	}
	for name, m := range c.Embedding.Models {
		if m.Model == "" {
			return fmt.Errorf("%w: embedding model %s has no model id", errdefs.ErrConfig, name)
		}
		if !oneOf(m.Provider, "openai", "ollama", "gemini", "onnx", "mock") {
			return fmt.Errorf("%w: embedding model %s has unknown provider %q", errdefs.ErrConfig, name, m.Provider)
		}
	}
	return nil
}

// EmbeddingModelByName returns the catalog entry for name (e.g. "OPENAI_LARGE").
func (c *Config) EmbeddingModelByName(name string) (EmbeddingModel, error) {
	m, ok := c.Embedding.Models[strings.ToUpper(name)]
	if !ok {
		return EmbeddingModel{}, fmt.Errorf("%w: unknown embedding %q (choose one of %s)",
			errdefs.ErrConfig, name, strings.Join(c.EmbeddingNames(), ", "))
	}
	return m, nil
}

// EmbeddingModelByID returns the catalog entry whose model identity is id.
func (c *Config) EmbeddingModelByID(id string) (EmbeddingModel, error) {
	for _, name := range c.EmbeddingNames() {
		if m := c.Embedding.Models[name]; m.Model == id {
			return m, nil
		}
	}
	return EmbeddingModel{}, fmt.Errorf("%w: no embedding model with id %q", errdefs.ErrConfig, id)
}

// EmbeddingNames returns the selectable embedding names in sorted order.
func (c *Config) EmbeddingNames() []string {
	names := make([]string, 0, len(c.Embedding.Models))
	for name := range c.Embedding.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func expandPaths(cfg *Config, configDir string) {
	cfg.Data.Dir = expandPath(cfg.Data.Dir, configDir)
	cfg.Storage.TrackerPath = expandPath(cfg.Storage.TrackerPath, configDir)
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)
	cfg.Storage.KeywordIndexPath = expandPath(cfg.Storage.KeywordIndexPath, configDir)
	for name, m := range cfg.Embedding.Models {
		if m.ModelPath != "" {
			m.ModelPath = expandPath(m.ModelPath, configDir)
			cfg.Embedding.Models[name] = m
		}
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
