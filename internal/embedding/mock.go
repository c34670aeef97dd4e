package embedding

import (
	"context"
	"hash/fnv"
	"strings"

	"github.com/hyperjump/ragprobe/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests and offline runs. Each
// lower-cased word is hashed into a bucket, so texts sharing words are close
// under cosine similarity.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns a normalized bag-of-words embedding of text.
func (e *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	emb := make([]float32, e.dimensions)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?\"'()[]")
		if w == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		emb[h.Sum32()%uint32(e.dimensions)]++
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
