// Package rag implements the retrieval-augmented-generation pipeline whose retrieval accuracy is measured.
package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/ragprobe/internal/models"
)

// DefaultTopK is the number of chunks retrieved per query.
const DefaultTopK = 5

// ContextSeparator joins retrieved chunk contents into the answer context.
const ContextSeparator = "\n\n---\n\n"

// Ingester refreshes the retrieval index from the knowledge directory.
type Ingester interface {
	Ingest(ctx context.Context, dir, modelID string) (int, error)
}

// Retriever returns the top-k chunks for a query under an embedding model.
type Retriever interface {
	Query(ctx context.Context, modelID, query string, k int) ([]models.RetrievedChunk, error)
}

// Answerer produces an answer from a query and a context.
type Answerer interface {
	Answer(ctx context.Context, query, contextText string) (string, error)
}

// Pipeline is the system under test: ingest, retrieve, answer.
type Pipeline struct {
	ingester  Ingester
	retriever Retriever
	answerer  Answerer
	dataDir   string
	modelID   string
	topK      int
	logger    *zap.Logger // optional
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a logger for retrieval events.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithTopK overrides the number of retrieved chunks.
func WithTopK(k int) Option {
	return func(p *Pipeline) {
		if k > 0 {
			p.topK = k
		}
	}
}

// NewPipeline creates a pipeline bound to one embedding model and knowledge directory.
func NewPipeline(ingester Ingester, retriever Retriever, answerer Answerer, dataDir, modelID string, opts ...Option) *Pipeline {
	p := &Pipeline{
		ingester:  ingester,
		retriever: retriever,
		answerer:  answerer,
		dataDir:   dataDir,
		modelID:   modelID,
		topK:      DefaultTopK,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ModelID returns the embedding-model identity the pipeline retrieves under.
func (p *Pipeline) ModelID() string {
	return p.modelID
}

// Generate refreshes ingestion, retrieves the top-k chunks for query, and answers
// from their joined contents. sources holds the hit identities in rank order;
// an entry is empty when its hit carried no identity.
func (p *Pipeline) Generate(ctx context.Context, query string) (answer string, sources []string, err error) {
	if _, err := p.ingester.Ingest(ctx, p.dataDir, p.modelID); err != nil {
		return "", nil, fmt.Errorf("failed to refresh ingestion: %w", err)
	}
	hits, err := p.retriever.Query(ctx, p.modelID, query, p.topK)
	if err != nil {
		return "", nil, fmt.Errorf("failed to retrieve: %w", err)
	}
	if p.logger != nil {
		p.logger.Debug("retrieved chunks", zap.String("model", p.modelID), zap.Int("hits", len(hits)))
	}
	contents := make([]string, len(hits))
	sources = make([]string, len(hits))
	for i, h := range hits {
		contents[i] = h.Content
		sources[i] = h.ID
	}
	answer, err = p.answerer.Answer(ctx, query, strings.Join(contents, ContextSeparator))
	if err != nil {
		return "", nil, fmt.Errorf("failed to answer: %w", err)
	}
	return answer, sources, nil
}
