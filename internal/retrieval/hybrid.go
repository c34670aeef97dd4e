package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hyperjump/ragprobe/internal/errdefs"
	"github.com/hyperjump/ragprobe/internal/models"
)

// HybridIndex writes to a semantic and a keyword index and fuses their rankings.
type HybridIndex struct {
	semantic       Index
	keyword        Index
	keywordWeight  float64
	semanticWeight float64
}

// NewHybridIndex combines semantic and keyword with the given fusion weights.
func NewHybridIndex(semantic, keyword Index, keywordWeight, semanticWeight float64) *HybridIndex {
	return &HybridIndex{
		semantic:       semantic,
		keyword:        keyword,
		keywordWeight:  keywordWeight,
		semanticWeight: semanticWeight,
	}
}

// Contains reports a chunk as present only when both indices hold it.
func (h *HybridIndex) Contains(ctx context.Context, modelID string, ids []string) (map[string]bool, error) {
	sem, err := h.semantic.Contains(ctx, modelID, ids)
	if err != nil {
		return nil, err
	}
	kw, err := h.keyword.Contains(ctx, modelID, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = sem[id] && kw[id]
	}
	return out, nil
}

// Add writes recs to both indices. Both overwrite by ID, so a retry after a partial failure is safe.
func (h *HybridIndex) Add(ctx context.Context, modelID string, recs []models.ChunkRecord) error {
	if err := h.semantic.Add(ctx, modelID, recs); err != nil {
		return err
	}
	return h.keyword.Add(ctx, modelID, recs)
}

// Query fetches 2k candidates from each index, fuses the normalized scores and returns the top k.
func (h *HybridIndex) Query(ctx context.Context, modelID, query string, k int) ([]models.RetrievedChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	candidates := k * 2
	semHits, err := h.semantic.Query(ctx, modelID, query, candidates)
	if err != nil {
		return nil, err
	}
	kwHits, err := h.keyword.Query(ctx, modelID, query, candidates)
	if err != nil {
		return nil, err
	}
	return fuseHits(kwHits, semHits, h.keywordWeight, h.semanticWeight, k), nil
}

// fuseHits merges two rankings of the same chunk-ID space. Keyword scores are
// scaled by the best keyword hit; cosine scores are used as they are. A chunk
// found by only one index scores zero for the other. Ties go to the smaller
// chunk ID so identical queries give identical provenance.
func fuseHits(kwHits, semHits []models.RetrievedChunk, keywordWeight, semanticWeight float64, k int) []models.RetrievedChunk {
	maxKeyword := 0.0
	for _, c := range kwHits {
		if c.Score > maxKeyword {
			maxKeyword = c.Score
		}
	}
	byID := make(map[string]*models.RetrievedChunk, len(kwHits)+len(semHits))
	order := make([]string, 0, len(kwHits)+len(semHits))
	add := func(c models.RetrievedChunk, score float64) {
		if prev, ok := byID[c.ID]; ok {
			prev.Score += score
			if prev.Content == "" {
				prev.Content = c.Content
			}
			return
		}
		c.Score = score
		byID[c.ID] = &c
		order = append(order, c.ID)
	}
	for _, c := range kwHits {
		normalized := 0.0
		if maxKeyword > 0 {
			normalized = c.Score / maxKeyword
		}
		add(c, keywordWeight*normalized)
	}
	for _, c := range semHits {
		add(c, semanticWeight*c.Score)
	}

	out := make([]models.RetrievedChunk, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// IDs returns the semantic index's IDs.
func (h *HybridIndex) IDs(ctx context.Context, modelID string) ([]string, error) {
	return h.semantic.IDs(ctx, modelID)
}

// Get reads from the semantic index, falling back to the keyword index.
func (h *HybridIndex) Get(ctx context.Context, modelID, id string) (*models.RetrievedChunk, error) {
	c, err := h.semantic.Get(ctx, modelID, id)
	if errors.Is(err, errdefs.ErrNotFound) {
		return h.keyword.Get(ctx, modelID, id)
	}
	return c, err
}

// Count returns the semantic index's count.
func (h *HybridIndex) Count(ctx context.Context, modelID string) (int, error) {
	return h.semantic.Count(ctx, modelID)
}

// Close closes both indices.
func (h *HybridIndex) Close() error {
	return errors.Join(h.semantic.Close(), h.keyword.Close())
}

// New builds the index selected by mode ("semantic", "keyword", or "hybrid").
// semantic may be nil for keyword mode; keywordPath is ignored in semantic mode.
func New(mode string, semantic *SemanticIndex, keywordPath string, keywordWeight, semanticWeight float64, opts ...Option) (Index, error) {
	switch mode {
	case "semantic", "":
		if semantic == nil {
			return nil, fmt.Errorf("%w: semantic retrieval needs a vector store", errdefs.ErrConfig)
		}
		return semantic, nil
	case "keyword":
		return NewKeywordIndex(keywordPath, opts...)
	case "hybrid":
		if semantic == nil {
			return nil, fmt.Errorf("%w: hybrid retrieval needs a vector store", errdefs.ErrConfig)
		}
		kw, err := NewKeywordIndex(keywordPath, opts...)
		if err != nil {
			return nil, err
		}
		return NewHybridIndex(semantic, kw, keywordWeight, semanticWeight), nil
	default:
		return nil, fmt.Errorf("%w: unknown retrieval mode %q", errdefs.ErrConfig, mode)
	}
}
