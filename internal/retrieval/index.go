// Package retrieval provides the chunk index used by ingestion and by the RAG pipeline.
// Every operation is scoped to an embedding-model identity.
package retrieval

import (
	"context"

	"github.com/hyperjump/ragprobe/internal/models"
	"go.uber.org/zap"
)

// Index stores identified chunks and answers top-k queries over them.
type Index interface {
	// Contains reports which of ids are already indexed under modelID.
	Contains(ctx context.Context, modelID string, ids []string) (map[string]bool, error)
	// Add indexes recs under modelID, replacing chunks with the same ID.
	Add(ctx context.Context, modelID string, recs []models.ChunkRecord) error
	// Query returns up to k chunks for query, best first.
	Query(ctx context.Context, modelID, query string, k int) ([]models.RetrievedChunk, error)
	// IDs returns every chunk ID indexed under modelID, sorted.
	IDs(ctx context.Context, modelID string) ([]string, error)
	// Get returns the chunk stored under id, or errdefs.ErrNotFound.
	Get(ctx context.Context, modelID, id string) (*models.RetrievedChunk, error)
	// Count returns the number of chunks indexed under modelID.
	Count(ctx context.Context, modelID string) (int, error)
	Close() error
}

// Option configures an index.
type Option func(*options)

type options struct {
	logger       *zap.Logger
	snapshotPath string
	batchSize    int
}

// WithLogger sets the logger for the index.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSnapshot makes a semantic index save its in-memory vector store to path after each Add.
func WithSnapshot(path string) Option {
	return func(o *options) { o.snapshotPath = path }
}

// WithBatchSize sets how many chunks are embedded per provider request.
func WithBatchSize(n int) Option {
	return func(o *options) { o.batchSize = n }
}

func buildOptions(opts []Option) options {
	o := options{batchSize: 64}
	for _, opt := range opts {
		opt(&o)
	}
	if o.batchSize <= 0 {
		o.batchSize = 64
	}
	return o
}
