package embedding

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/hyperjump/ragprobe/internal/errdefs"
)

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint. Cohere is
// reached the same way through its compatibility base URL.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAIEmbedder creates an embedder for model. baseURL may be empty for api.openai.com.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dimensions int) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required for embedding model %s", errdefs.ErrConfig, model)
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		dimensions: dimensions,
	}, nil
}

// Embed returns the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embs[0], nil
}

// EmbedBatch embeds texts in one request. Results are placed by their response index.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create embeddings with %s: %w", errdefs.ErrExternalService, e.model, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: %s returned %d embeddings for %d inputs", errdefs.ErrExternalService, e.model, len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", errdefs.ErrExternalService, d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// Dimensions returns the configured embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the HTTP client holds no resources.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
