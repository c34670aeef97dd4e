package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/ragprobe/internal/embedding"
	"github.com/hyperjump/ragprobe/internal/errdefs"
	"github.com/hyperjump/ragprobe/internal/models"
	"github.com/hyperjump/ragprobe/internal/vector"
	"go.uber.org/zap"
)

// Embedders resolves the embedder for an embedding-model identity.
type Embedders interface {
	Get(ctx context.Context, modelID string) (embedding.Embedder, error)
}

// SemanticIndex embeds chunks with the model named by modelID and stores them
// in the vector namespace of the same name.
type SemanticIndex struct {
	store     vector.Store
	embedders Embedders
	opts      options
}

// NewSemanticIndex creates a semantic index over store.
func NewSemanticIndex(store vector.Store, embedders Embedders, opts ...Option) *SemanticIndex {
	return &SemanticIndex{store: store, embedders: embedders, opts: buildOptions(opts)}
}

// Contains delegates to the vector store.
func (s *SemanticIndex) Contains(ctx context.Context, modelID string, ids []string) (map[string]bool, error) {
	return s.store.Contains(ctx, modelID, ids)
}

// Add embeds recs in batches and upserts them with their metadata.
func (s *SemanticIndex) Add(ctx context.Context, modelID string, recs []models.ChunkRecord) error {
	if len(recs) == 0 {
		return nil
	}
	emb, err := s.embedders.Get(ctx, modelID)
	if err != nil {
		return err
	}
	for start := 0; start < len(recs); start += s.opts.batchSize {
		end := start + s.opts.batchSize
		if end > len(recs) {
			end = len(recs)
		}
		batch := recs[start:end]
		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].Content
		}
		vectors, err := emb.EmbedBatch(ctx, texts)
		if err != nil {
			return externalErr("embed chunks", err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("%w: embedder returned %d vectors for %d chunks", errdefs.ErrExternalService, len(vectors), len(batch))
		}
		points := make([]vector.Point, len(batch))
		for i := range batch {
			points[i] = vector.Point{
				ID:       batch[i].ID,
				Vector:   vectors[i],
				Content:  batch[i].Content,
				Metadata: batch[i].Metadata(),
			}
		}
		if err := s.store.Upsert(ctx, modelID, points); err != nil {
			return fmt.Errorf("failed to upsert chunks: %w", err)
		}
	}
	if s.opts.logger != nil {
		s.opts.logger.Debug("chunks embedded", zap.String("model", modelID), zap.Int("count", len(recs)))
	}
	return s.snapshot()
}

func (s *SemanticIndex) snapshot() error {
	p, ok := s.store.(vector.Persister)
	if !ok || s.opts.snapshotPath == "" {
		return nil
	}
	if err := p.Save(s.opts.snapshotPath); err != nil {
		return fmt.Errorf("failed to save vector snapshot: %w", err)
	}
	return nil
}

// Query embeds query and returns the nearest chunks.
func (s *SemanticIndex) Query(ctx context.Context, modelID, query string, k int) ([]models.RetrievedChunk, error) {
	emb, err := s.embedders.Get(ctx, modelID)
	if err != nil {
		return nil, err
	}
	vec, err := emb.Embed(ctx, query)
	if err != nil {
		return nil, externalErr("embed query", err)
	}
	hits, err := s.store.Search(ctx, modelID, vec, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}
	out := make([]models.RetrievedChunk, len(hits))
	for i, h := range hits {
		out[i] = toRetrieved(h)
	}
	return out, nil
}

// IDs delegates to the vector store.
func (s *SemanticIndex) IDs(ctx context.Context, modelID string) ([]string, error) {
	return s.store.IDs(ctx, modelID)
}

// Get delegates to the vector store.
func (s *SemanticIndex) Get(ctx context.Context, modelID, id string) (*models.RetrievedChunk, error) {
	h, err := s.store.Get(ctx, modelID, id)
	if err != nil {
		return nil, err
	}
	rc := toRetrieved(h)
	if rc.ID == "" {
		rc.ID = id
	}
	return &rc, nil
}

// Count delegates to the vector store.
func (s *SemanticIndex) Count(ctx context.Context, modelID string) (int, error) {
	return s.store.Count(ctx, modelID)
}

// Close saves a pending snapshot and closes the vector store.
func (s *SemanticIndex) Close() error {
	return errors.Join(s.snapshot(), s.store.Close())
}

// toRetrieved takes the chunk identity from the hit metadata; a hit without one keeps an empty ID.
func toRetrieved(h *vector.Hit) models.RetrievedChunk {
	return models.RetrievedChunk{
		ID:       h.Metadata[models.MetaID],
		Content:  h.Content,
		Score:    h.Score,
		Metadata: h.Metadata,
	}
}

func externalErr(op string, err error) error {
	if errors.Is(err, errdefs.ErrExternalService) || errors.Is(err, errdefs.ErrConfig) {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return fmt.Errorf("failed to %s: %w: %w", op, errdefs.ErrExternalService, err)
}
