// Package metrics holds the Prometheus collectors exported by ragprobe.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ChunksIndexed counts chunks added to the retrieval index, by embedding model.
var ChunksIndexed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ragprobe_chunks_indexed_total",
	Help: "Chunks added to the retrieval index, labelled by embedding model",
}, []string{"model"})

// EvaluationOutcomes counts evaluated test cases by embedding model and outcome (passed, failed, error).
var EvaluationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ragprobe_evaluations_total",
	Help: "Evaluated test cases, labelled by embedding model and outcome",
}, []string{"model", "outcome"})

var iterationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "ragprobe_iteration_duration_seconds",
	Help:    "Wall time of one experiment iteration.",
	Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60},
}, []string{"model"})

var llmLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "ragprobe_llm_latency_seconds",
	Help:    "Latency of language model calls.",
	Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30},
}, []string{"provider", "call"})

// HTTPRequestsTotal counts API requests by route pattern and status.
var HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ragprobe_http_requests_total",
	Help: "Total number of requests labelled by path and status",
}, []string{"path", "status"})

// Outcome labels for EvaluationOutcomes.
const (
	OutcomePassed = "passed"
	OutcomeFailed = "failed"
	OutcomeError  = "error"
)

// RecordOutcome counts one evaluation. err takes precedence over passed.
func RecordOutcome(model string, passed bool, err error) {
	outcome := OutcomeFailed
	switch {
	case err != nil:
		outcome = OutcomeError
	case passed:
		outcome = OutcomePassed
	}
	EvaluationOutcomes.WithLabelValues(model, outcome).Inc()
}

// CaptureIteration observes the duration of one experiment iteration.
func CaptureIteration(model string, elapsed time.Duration) {
	iterationDuration.WithLabelValues(model).Observe(elapsed.Seconds())
}

// CaptureLLM observes the duration of one language model call.
func CaptureLLM(provider, call string, elapsed time.Duration) {
	llmLatency.WithLabelValues(provider, call).Observe(elapsed.Seconds())
}
