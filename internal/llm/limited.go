package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/ragprobe/internal/errdefs"
	"github.com/hyperjump/ragprobe/internal/metrics"
	"github.com/hyperjump/ragprobe/internal/models"
)

// Limited paces calls to a Model, bounds each call with a timeout, and records latency.
type Limited struct {
	model    Model
	provider string
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   *zap.Logger // optional
}

// LimitedOption configures a Limited model.
type LimitedOption func(*Limited)

// WithLogger sets a logger for call timing.
func WithLogger(l *zap.Logger) LimitedOption {
	return func(m *Limited) { m.logger = l }
}

// NewLimited wraps m. A non-positive rps disables pacing; a zero timeout disables the deadline.
func NewLimited(m Model, provider string, rps float64, burst int, timeout time.Duration, opts ...LimitedOption) *Limited {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	l := &Limited{
		model:    m,
		provider: provider,
		limiter:  rate.NewLimiter(limit, burst),
		timeout:  timeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limited) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("%w: %s rate limiter: %w", errdefs.ErrExternalService, l.provider, err)
	}
	if l.timeout > 0 {
		cctx, cancel := context.WithTimeout(ctx, l.timeout)
		return cctx, cancel, nil
	}
	return ctx, func() {}, nil
}

func (l *Limited) observe(call string, start time.Time, err error) {
	elapsed := time.Since(start)
	metrics.CaptureLLM(l.provider, call, elapsed)
	if l.logger != nil {
		l.logger.Debug("llm call", zap.String("provider", l.provider), zap.String("call", call),
			zap.Duration("elapsed", elapsed), zap.Error(err))
	}
}

// Answer forwards to the wrapped model.
func (l *Limited) Answer(ctx context.Context, query, contextText string) (string, error) {
	cctx, cancel, err := l.begin(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()
	start := time.Now()
	out, err := l.model.Answer(cctx, query, contextText)
	l.observe("answer", start, err)
	return out, err
}

// GenerateQuestion forwards to the wrapped model.
func (l *Limited) GenerateQuestion(ctx context.Context, contextText string) (*models.Question, error) {
	cctx, cancel, err := l.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	start := time.Now()
	q, err := l.model.GenerateQuestion(cctx, contextText)
	l.observe("generate_question", start, err)
	return q, err
}
