// Package experiment repeats evaluations of a pipeline and summarizes its retrieval accuracy.
package experiment

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/ragprobe/internal/errdefs"
	"github.com/hyperjump/ragprobe/internal/evaluate"
	"github.com/hyperjump/ragprobe/internal/metrics"
	"github.com/hyperjump/ragprobe/internal/models"
	"github.com/hyperjump/ragprobe/internal/sampling"
)

// Ingester refreshes the retrieval index.
type Ingester interface {
	Ingest(ctx context.Context, dir, modelID string) (int, error)
}

// ChunkSource lists and reads indexed chunks.
type ChunkSource interface {
	IDs(ctx context.Context, modelID string) ([]string, error)
	Get(ctx context.Context, modelID, id string) (*models.RetrievedChunk, error)
}

// CaseGenerator returns the test case for a chunk.
type CaseGenerator interface {
	GetOrCreate(ctx context.Context, docID, content string) (*models.TestCase, error)
}

// CaseRunner scores one test case against a pipeline.
type CaseRunner interface {
	Run(ctx context.Context, p evaluate.Pipeline, tc *models.TestCase) (models.EvaluationResult, error)
}

// Config selects what one experiment run does.
type Config struct {
	Experiments int
	Seed        int64
	// Resample picks a fresh chunk for every iteration, seeded with Seed+i.
	Resample bool
	DataDir  string
	ModelID  string
}

// Driver runs experiments sequentially.
type Driver struct {
	ingester  Ingester
	chunks    ChunkSource
	generator CaseGenerator
	runner    CaseRunner
	pipeline  evaluate.Pipeline
	out       io.Writer
	now       func() time.Time
	logger    *zap.Logger // optional
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// WithOutput sets where per-iteration progress lines are printed. nil discards them.
func WithOutput(w io.Writer) Option {
	return func(d *Driver) {
		if w == nil {
			w = io.Discard
		}
		d.out = w
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// NewDriver creates a driver. Progress lines go to io.Discard unless WithOutput is given.
func NewDriver(ingester Ingester, chunks ChunkSource, generator CaseGenerator, runner CaseRunner, pipeline evaluate.Pipeline, opts ...Option) *Driver {
	d := &Driver{
		ingester:  ingester,
		chunks:    chunks,
		generator: generator,
		runner:    runner,
		pipeline:  pipeline,
		out:       io.Discard,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ResolveTestCase ensures ingestion has run, picks a chunk by seed, and returns its test case.
func (d *Driver) ResolveTestCase(ctx context.Context, dataDir, modelID string, seed int64) (*models.TestCase, error) {
	ids, err := d.chunks.IDs(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	if len(ids) == 0 {
		if _, err := d.ingester.Ingest(ctx, dataDir, modelID); err != nil {
			return nil, fmt.Errorf("failed to ingest: %w", err)
		}
		if ids, err = d.chunks.IDs(ctx, modelID); err != nil {
			return nil, fmt.Errorf("failed to list chunks: %w", err)
		}
	}
	docID, err := sampling.Pick(ids, seed)
	if err != nil {
		return nil, fmt.Errorf("no chunks indexed under %s: %w", modelID, err)
	}
	chunk, err := d.chunks.Get(ctx, modelID, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk %s: %w", docID, err)
	}
	return d.generator.GetOrCreate(ctx, docID, chunk.Content)
}

// Run executes cfg.Experiments iterations and returns the summary. A failure to
// build the initial test case aborts the run; a failed iteration is counted and
// the loop continues.
func (d *Driver) Run(ctx context.Context, cfg Config) (*Summary, error) {
	if cfg.Experiments <= 0 {
		return nil, fmt.Errorf("%w: experiments must be positive, got %d", errdefs.ErrInvalidInput, cfg.Experiments)
	}
	var tc *models.TestCase
	if !cfg.Resample {
		var err error
		tc, err = d.ResolveTestCase(ctx, cfg.DataDir, cfg.ModelID, cfg.Seed)
		if err != nil {
			fmt.Fprintf(d.out, "error occurred generating the question: %v\n", err)
			return nil, err
		}
	}

	summary := &Summary{Model: cfg.ModelID, Seed: cfg.Seed, TotalExperiments: cfg.Experiments}
	var iterationTotal time.Duration
	start := d.now()
	for i := 0; i < cfg.Experiments; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iterStart := d.now()
		it := d.iterate(ctx, cfg, tc, i)
		it.Duration = d.now().Sub(iterStart)
		iterationTotal += it.Duration

		if it.Passed {
			summary.Successes++
		}
		summary.Iterations = append(summary.Iterations, it)
		metrics.CaptureIteration(cfg.ModelID, it.Duration)
		fmt.Fprintf(d.out, "Iteration %d took %.4f seconds\n", it.Index, it.Duration.Seconds())
	}
	summary.TotalDuration = d.now().Sub(start)
	summary.Failures = summary.TotalExperiments - summary.Successes
	summary.SuccessRate = float64(summary.Successes) / float64(summary.TotalExperiments) * 100
	summary.AverageIteration = iterationTotal / time.Duration(summary.TotalExperiments)
	return summary, nil
}

func (d *Driver) iterate(ctx context.Context, cfg Config, tc *models.TestCase, i int) Iteration {
	it := Iteration{Index: i + 1}
	if cfg.Resample {
		var err error
		tc, err = d.ResolveTestCase(ctx, cfg.DataDir, cfg.ModelID, cfg.Seed+int64(i))
		if err != nil {
			it.Error = err.Error()
			fmt.Fprintf(d.out, "error occurred generating the question: %v\n", err)
			metrics.RecordOutcome(cfg.ModelID, false, err)
			return it
		}
	}
	it.DocID = tc.DocID
	it.Question = tc.Question

	res, err := d.runner.Run(ctx, d.pipeline, tc)
	metrics.RecordOutcome(cfg.ModelID, res.Passed, err)
	if err != nil {
		it.Error = err.Error()
		fmt.Fprintf(d.out, "failed test: %s (%v)\n", tc.Question, err)
		return it
	}
	it.Passed = res.Passed
	it.Sources = res.Sources()
	if res.Passed {
		fmt.Fprintf(d.out, "passed test: %s\n", tc.Question)
	} else {
		fmt.Fprintf(d.out, "failed test: %s\n", tc.Question)
	}
	if d.logger != nil {
		d.logger.Debug("iteration finished", zap.Int("iteration", it.Index), zap.Bool("passed", it.Passed))
	}
	return it
}

// Evaluation is one seeded test case run once, with the pipeline's answer.
type Evaluation struct {
	DocID    string   `json:"doc_id"`
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Passed   bool     `json:"passed"`
	Sources  []string `json:"sources"`
}

// answerRecorder keeps the last answer produced by the wrapped pipeline.
type answerRecorder struct {
	evaluate.Pipeline
	answer string
}

func (r *answerRecorder) Generate(ctx context.Context, query string) (string, []string, error) {
	answer, sources, err := r.Pipeline.Generate(ctx, query)
	r.answer = answer
	return answer, sources, err
}

// Evaluate resolves the test case for seed and runs it once against the driver's pipeline.
func (d *Driver) Evaluate(ctx context.Context, dataDir, modelID string, seed int64) (*Evaluation, error) {
	tc, err := d.ResolveTestCase(ctx, dataDir, modelID, seed)
	if err != nil {
		return nil, err
	}
	rec := &answerRecorder{Pipeline: d.pipeline}
	res, err := d.runner.Run(ctx, rec, tc)
	metrics.RecordOutcome(modelID, res.Passed, err)
	if err != nil {
		return nil, err
	}
	sources := res.Sources()
	sort.Strings(sources)
	return &Evaluation{
		DocID:    tc.DocID,
		Question: tc.Question,
		Answer:   rec.answer,
		Passed:   res.Passed,
		Sources:  sources,
	}, nil
}
