// Package testgen creates and caches the true/false test case for a chunk.
package testgen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/ragprobe/internal/errdefs"
	"github.com/hyperjump/ragprobe/internal/models"
	"github.com/hyperjump/ragprobe/pkg/utils"
)

// QuestionStore persists one question/answer pair per doc_id.
type QuestionStore interface {
	HasQuestion(ctx context.Context, docID string) (bool, error)
	SaveQuestion(ctx context.Context, tc *models.TestCase) error
	LoadQuestion(ctx context.Context, docID string) (*models.TestCase, error)
}

// QuestionGenerator asks the language model for a boolean question about a context.
type QuestionGenerator interface {
	GenerateQuestion(ctx context.Context, contextText string) (*models.Question, error)
}

// Generator returns the cached test case for a doc_id or generates and stores a new one.
type Generator struct {
	store  QuestionStore
	model  QuestionGenerator
	logger *zap.Logger // optional
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets a logger for cache hits and generations.
func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// NewGenerator creates a generator.
func NewGenerator(store QuestionStore, model QuestionGenerator, opts ...Option) *Generator {
	g := &Generator{store: store, model: model}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GetOrCreate returns the stored test case for docID, or generates one from content,
// stores it, and returns it. The model is called at most once per call and never
// when a pair is already stored. Malformed model output is errdefs.ErrGenerationFailed
// and is not retried. If a concurrent writer stored a pair first, that pair is returned.
func (g *Generator) GetOrCreate(ctx context.Context, docID, content string) (*models.TestCase, error) {
	if docID == "" {
		return nil, fmt.Errorf("%w: empty doc_id", errdefs.ErrInvalidInput)
	}
	has, err := g.store.HasQuestion(ctx, docID)
	if err != nil {
		return nil, err
	}
	if has {
		if g.logger != nil {
			g.logger.Info("loading stored question", zap.String("doc_id", docID))
		}
		return g.store.LoadQuestion(ctx, docID)
	}

	if g.logger != nil {
		g.logger.Info("generating new question", zap.String("doc_id", docID))
	}
	q, err := g.model.GenerateQuestion(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("failed to generate question for %s: %w", docID, err)
	}
	if q == nil {
		return nil, fmt.Errorf("failed to generate question for %s: %w: no output", docID, errdefs.ErrGenerationFailed)
	}
	tc := &models.TestCase{
		DocID:    docID,
		Question: utils.CollapseWhitespace(q.Question),
		Answer:   utils.CollapseWhitespace(q.Answer),
	}
	if strings.TrimSpace(tc.Question) == "" || strings.TrimSpace(tc.Answer) == "" {
		return nil, fmt.Errorf("failed to generate question for %s: %w: empty question or answer", docID, errdefs.ErrGenerationFailed)
	}
	if err := g.store.SaveQuestion(ctx, tc); err != nil {
		if errors.Is(err, errdefs.ErrConflict) {
			if g.logger != nil {
				g.logger.Warn("question stored concurrently, using stored pair", zap.String("doc_id", docID))
			}
			return g.store.LoadQuestion(ctx, docID)
		}
		return nil, err
	}
	return tc, nil
}
