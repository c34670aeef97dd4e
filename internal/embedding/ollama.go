package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"github.com/hyperjump/ragprobe/internal/errdefs"
	"github.com/hyperjump/ragprobe/pkg/utils"
)

// OllamaEmbedder generates embeddings with a local Ollama server.
type OllamaEmbedder struct {
	client     *api.Client
	model      string
	dimensions int
}

// NewOllamaEmbedder creates an embedder for model. An empty baseURL uses OLLAMA_HOST or the default.
func NewOllamaEmbedder(baseURL, model string, dimensions int) (*OllamaEmbedder, error) {
	client, err := newOllamaClient(baseURL)
	if err != nil {
		return nil, err
	}
	return &OllamaEmbedder{client: client, model: model, dimensions: dimensions}, nil
}

func newOllamaClient(baseURL string) (*api.Client, error) {
	if baseURL == "" {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("%w: ollama client: %w", errdefs.ErrConfig, err)
		}
		return client, nil
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama base_url: %w", errdefs.ErrConfig, err)
	}
	return api.NewClient(u, http.DefaultClient), nil
}

// Embed returns the normalized embedding for text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings(ctx, &api.EmbeddingRequest{
		Model:  e.model,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: ollama embeddings with %s: %w", errdefs.ErrExternalService, e.model, err)
	}
	emb := utils.Float64sToFloat32s(resp.Embedding)
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the configured embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *OllamaEmbedder) Close() error {
	return nil
}
