// Package server provides the HTTP API for ragprobe.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/ragprobe/internal/config"
	"github.com/hyperjump/ragprobe/internal/experiment"
	"github.com/hyperjump/ragprobe/internal/metrics"
	"github.com/hyperjump/ragprobe/internal/models"
	"github.com/hyperjump/ragprobe/pkg/utils"
)

// Ledger is the part of the tracker the API exposes.
type Ledger interface {
	ListTracked(ctx context.Context, modelID string) ([]string, error)
	RemoveTracked(ctx context.Context, title, modelID string) error
	LoadQuestion(ctx context.Context, docID string) (*models.TestCase, error)
}

// Ingester runs ingestion of the knowledge directory under an embedding model.
type Ingester interface {
	Ingest(ctx context.Context, dir, modelID string) (int, error)
}

// Evaluator runs a single seeded evaluation under an embedding model.
type Evaluator interface {
	Evaluate(ctx context.Context, modelID string, seed int64) (*experiment.Evaluation, error)
}

// Server is the HTTP server for the ragprobe API.
type Server struct {
	ledger    Ledger
	ingester  Ingester
	evaluator Evaluator
	config    *config.Config
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies. cfg resolves embedding
// names and supplies the data directory and listen address.
func NewServer(ledger Ledger, ingester Ingester, evaluator Evaluator, cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		ledger:    ledger,
		ingester:  ingester,
		evaluator: evaluator,
		config:    cfg,
		logger:    utils.OrNop(logger),
	}
}

// Routes returns the API router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(countRequests)
	r.Use(middleware.Timeout(10 * time.Minute))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/documents", s.handleListDocuments)
		r.Delete("/documents", s.handleRemoveDocument)
		r.Get("/questions/{docID}", s.handleGetQuestion)
		r.Post("/ingest", s.handleIngest)
		r.Post("/evaluate", s.handleEvaluate)
	})
	return r
}

// countRequests increments metrics.HTTPRequestsTotal by route pattern and status.
func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequestsTotal.WithLabelValues(path, strconv.Itoa(status)).Inc()
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
