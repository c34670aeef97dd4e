package embedding

import (
	"context"
)

// CachedEmbedder serves repeated texts from a Cache. Keys are namespaced by
// model so different models never share vectors.
type CachedEmbedder struct {
	Embedder
	cache  Cache
	prefix string
}

// NewCachedEmbedder wraps e with cache under the given model namespace.
func NewCachedEmbedder(e Embedder, cache Cache, modelID string) *CachedEmbedder {
	return &CachedEmbedder{Embedder: e, cache: cache, prefix: modelID + ":"}
}

// Embed returns the cached embedding for text or computes and stores it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(ctx, c.prefix+text); ok {
		return v, nil
	}
	v, err := c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ctx, c.prefix+text, v)
	return v, nil
}

// EmbedBatch embeds only the texts missing from the cache, in one batch call.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	for i, t := range texts {
		if v, ok := c.cache.Get(ctx, c.prefix+t); ok {
			out[i] = v
			continue
		}
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}
	embs, err := c.Embedder.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, v := range embs {
		out[missIdx[j]] = v
		c.cache.Set(ctx, c.prefix+missTexts[j], v)
	}
	return out, nil
}
