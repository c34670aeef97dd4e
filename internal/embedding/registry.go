package embedding

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/ragprobe/internal/config"
	"github.com/hyperjump/ragprobe/internal/errdefs"
)

// New builds the provider for one catalog entry. API keys are read from the
// environment variable named by m.APIKeyEnv.
func New(ctx context.Context, m config.EmbeddingModel) (Embedder, error) {
	key := ""
	if m.APIKeyEnv != "" {
		key = os.Getenv(m.APIKeyEnv)
	}
	switch m.Provider {
	case "openai":
		return NewOpenAIEmbedder(key, m.BaseURL, m.Model, m.Dimensions)
	case "ollama":
		return NewOllamaEmbedder(m.BaseURL, m.Model, m.Dimensions)
	case "gemini":
		return NewGeminiEmbedder(ctx, key, m.Model, m.Dimensions)
	case "onnx":
		return NewONNXEmbedder(m.ModelPath, m.Dimensions, m.MaxTokens)
	case "mock":
		return NewMockEmbedder(m.Dimensions), nil
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", errdefs.ErrConfig, m.Provider)
	}
}

// Registry lazily builds one Embedder per embedding-model identity.
type Registry struct {
	models    map[string]config.EmbeddingModel
	cache     Cache
	embedders map[string]Embedder
	build     func(context.Context, config.EmbeddingModel) (Embedder, error)
	logger    *zap.Logger // optional
	mu        sync.Mutex
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets a logger for provider construction events.
func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// WithCache overrides the cache placed in front of every embedder. nil disables caching.
func WithCache(c Cache) RegistryOption {
	return func(r *Registry) { r.cache = c }
}

// NewRegistry creates a registry over the catalog in cfg. An in-memory LRU
// cache is used unless cfg.Cache is "none" or WithCache overrides it.
func NewRegistry(cfg *config.EmbeddingConfig, opts ...RegistryOption) *Registry {
	r := &Registry{
		models:    make(map[string]config.EmbeddingModel, len(cfg.Models)),
		embedders: make(map[string]Embedder),
		build:     New,
	}
	for _, m := range cfg.Models {
		r.models[m.Model] = m
	}
	if cfg.Cache == "memory" {
		r.cache = NewEmbeddingCache(cfg.CacheSize)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register installs e for modelID, replacing any built provider.
func (r *Registry) Register(modelID string, e Embedder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embedders[modelID] = r.wrap(modelID, e)
}

// Get returns the embedder for modelID, building it on first use.
func (r *Registry) Get(ctx context.Context, modelID string) (Embedder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.embedders[modelID]; ok {
		return e, nil
	}
	m, ok := r.models[modelID]
	if !ok {
		return nil, fmt.Errorf("%w: no embedding model with id %q", errdefs.ErrConfig, modelID)
	}
	e, err := r.build(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder %s: %w", modelID, err)
	}
	if r.logger != nil {
		r.logger.Info("embedder created", zap.String("provider", m.Provider), zap.String("model", modelID))
	}
	e = r.wrap(modelID, e)
	r.embedders[modelID] = e
	return e, nil
}

func (r *Registry) wrap(modelID string, e Embedder) Embedder {
	if r.cache == nil {
		return e
	}
	return NewCachedEmbedder(e, r.cache, modelID)
}

// Close closes every built embedder and returns the first error.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for id, e := range r.embedders {
		if err := e.Close(); err != nil && first == nil {
			first = err
		}
		delete(r.embedders, id)
	}
	return first
}
