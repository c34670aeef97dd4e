package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/hyperjump/ragprobe/internal/errdefs"
)

// GeminiEmbedder generates embeddings with the Gemini API.
type GeminiEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int
}

// NewGeminiEmbedder creates an embedder for model.
func NewGeminiEmbedder(ctx context.Context, apiKey, model string, dimensions int) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required for embedding model %s", errdefs.ErrConfig, model)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("%w: gemini client: %w", errdefs.ErrConfig, err)
	}
	return &GeminiEmbedder{client: client, model: model, dimensions: dimensions}, nil
}

// Embed returns the embedding for a single text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embs[0], nil
}

// EmbedBatch embeds texts in one EmbedContent call.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	cfg := &genai.EmbedContentConfig{}
	if e.dimensions > 0 {
		dim := int32(e.dimensions)
		cfg.OutputDimensionality = &dim
	}
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini embeddings with %s: %w", errdefs.ErrExternalService, e.model, err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: gemini returned an unexpected number of embeddings", errdefs.ErrExternalService)
	}
	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}

// Dimensions returns the configured embedding dimension.
func (e *GeminiEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the genai client holds no resources.
func (e *GeminiEmbedder) Close() error {
	return nil
}
