// Package evaluate scores a pipeline by whether it retrieves the chunk a question was generated from.
package evaluate

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/ragprobe/internal/errdefs"
	"github.com/hyperjump/ragprobe/internal/models"
)

// Pipeline is the system under test.
type Pipeline interface {
	Generate(ctx context.Context, query string) (answer string, sources []string, err error)
}

// Runner executes test cases against a pipeline.
type Runner struct {
	logger *zap.Logger // optional
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets a logger for pass/fail events.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run asks p the test-case question and passes when the test case's doc_id is
// among the returned sources. The answer text is not scored. Empty source
// entries are dropped. A pipeline failure yields Passed=false and an error
// wrapping errdefs.ErrExternalService.
func (r *Runner) Run(ctx context.Context, p Pipeline, tc *models.TestCase) (models.EvaluationResult, error) {
	_, sources, err := p.Generate(ctx, tc.Question)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("pipeline failed", zap.String("doc_id", tc.DocID), zap.Error(err))
		}
		if !errors.Is(err, errdefs.ErrExternalService) {
			err = fmt.Errorf("%w: %w", errdefs.ErrExternalService, err)
		}
		return models.EvaluationResult{}, fmt.Errorf("pipeline failed for %s: %w", tc.DocID, err)
	}
	result := Score(tc.DocID, sources)
	if r.logger != nil {
		r.logger.Info("test case evaluated",
			zap.Bool("passed", result.Passed),
			zap.String("question", tc.Question),
			zap.Int("sources", len(result.SourcesReturned)))
	}
	return result, nil
}

// Score builds the deduplicated set of non-empty sources and tests membership of docID.
func Score(docID string, sources []string) models.EvaluationResult {
	set := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		if s == "" {
			continue
		}
		set[s] = struct{}{}
	}
	_, passed := set[docID]
	return models.EvaluationResult{Passed: passed && docID != "", SourcesReturned: set}
}
