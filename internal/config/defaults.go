package config

import (
	"sort"
	"strings"
	"time"
)

// Chunking defaults, in characters.
const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 80
)

// DefaultEmbeddingModels is the built-in embedding catalog. COHERE is reached
// through Cohere's OpenAI-compatible endpoint.
func DefaultEmbeddingModels() map[string]EmbeddingModel {
	return map[string]EmbeddingModel{
		"COHERE": {
			Provider:   "openai",
			Model:      "embed-english-v3.0",
			Dimensions: 1024,
			BaseURL:    "https://api.cohere.ai/compatibility/v1",
			APIKeyEnv:  "COHERE_API_KEY",
		},
		"OPENAI_SMALL": {
			Provider:   "openai",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			APIKeyEnv:  "OPENAI_API_KEY",
		},
		"OPENAI_LARGE": {
			Provider:   "openai",
			Model:      "text-embedding-3-large",
			Dimensions: 3072,
			APIKeyEnv:  "OPENAI_API_KEY",
		},
		"GEMINI": {
			Provider:   "gemini",
			Model:      "text-embedding-004",
			Dimensions: 768,
			APIKeyEnv:  "GEMINI_API_KEY",
		},
		"OLLAMA": {
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			Dimensions: 768,
		},
		"LOCAL": {
			Provider:   "onnx",
			Model:      "all-MiniLM-L6-v2",
			Dimensions: 384,
			ModelPath:  "./models/all-MiniLM-L6-v2.onnx",
			MaxTokens:  256,
		},
		"MOCK": {
			Provider:   "mock",
			Model:      "mock-embedding",
			Dimensions: 64,
		},
	}
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Data.Dir == "" {
		cfg.Data.Dir = "./data"
	}
	if cfg.Data.Extensions == nil {
		cfg.Data.Extensions = []string{".pdf", ".txt", ".md", ".docx", ".odt", ".rtf", ".xlsx", ".pptx"}
	}
	if cfg.Storage.TrackerPath == "" {
		cfg.Storage.TrackerPath = "./db/knowledge_files_tracker.db"
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "./db/vectors.bin"
	}
	if cfg.Storage.KeywordIndexPath == "" {
		cfg.Storage.KeywordIndexPath = "./db/keyword.bleve"
	}
	// A zero overlap is a valid setting; it is only defaulted with the size.
	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = DefaultChunkSize
		if cfg.Chunking.Overlap == 0 {
			cfg.Chunking.Overlap = DefaultChunkOverlap
		}
	}
	if cfg.Retrieval.Mode == "" {
		cfg.Retrieval.Mode = "semantic"
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.KeywordWeight == 0 && cfg.Retrieval.SemanticWeight == 0 {
		cfg.Retrieval.KeywordWeight = 0.3
		cfg.Retrieval.SemanticWeight = 0.7
	}
	if cfg.Retrieval.Collection == "" {
		cfg.Retrieval.Collection = "llm-embedding-test-suite-1"
	}
	if cfg.Vector.Backend == "" {
		cfg.Vector.Backend = "memory"
	}
	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334
	}
	if cfg.Qdrant.PoolSize == 0 {
		cfg.Qdrant.PoolSize = 3
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 500
	}
	if cfg.LLM.APIKeyEnv == "" {
		switch cfg.LLM.Provider {
		case "openai":
			cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
		case "gemini":
			cfg.LLM.APIKeyEnv = "GEMINI_API_KEY"
		}
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 2 * time.Minute
	}
	if cfg.LLM.Burst == 0 {
		cfg.LLM.Burst = 1
	}
	defaults := DefaultEmbeddingModels()
	if cfg.Embedding.Models == nil {
		cfg.Embedding.Models = defaults
	} else {
		cfg.Embedding.Models = upperKeys(cfg.Embedding.Models)
		for name, m := range defaults {
			if _, ok := cfg.Embedding.Models[name]; !ok {
				cfg.Embedding.Models[name] = m
			}
		}
	}
	if cfg.Embedding.Cache == "" {
		cfg.Embedding.Cache = "memory"
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = 24 * time.Hour
	}
	if cfg.Experiment.Count == 0 {
		cfg.Experiment.Count = 10
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
}

// upperKeys returns models keyed by upper-cased name, matching how names are
// looked up. When two keys differ only in case, the one already upper-case wins.
func upperKeys(models map[string]EmbeddingModel) map[string]EmbeddingModel {
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make(map[string]EmbeddingModel, len(models))
	for _, name := range names {
		key := strings.ToUpper(name)
		if _, taken := out[key]; taken && name != key {
			continue
		}
		out[key] = models[name]
	}
	return out
}
