package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hyperjump/ragprobe/internal/config"
	"github.com/hyperjump/ragprobe/internal/embedding"
	"github.com/hyperjump/ragprobe/internal/evaluate"
	"github.com/hyperjump/ragprobe/internal/experiment"
	"github.com/hyperjump/ragprobe/internal/extract"
	"github.com/hyperjump/ragprobe/internal/indexer"
	"github.com/hyperjump/ragprobe/internal/llm"
	"github.com/hyperjump/ragprobe/internal/rag"
	"github.com/hyperjump/ragprobe/internal/retrieval"
	"github.com/hyperjump/ragprobe/internal/storage"
	"github.com/hyperjump/ragprobe/internal/testgen"
	"github.com/hyperjump/ragprobe/internal/vector"
)

// Components holds initialized services.
type Components struct {
	Config    *config.Config
	Tracker   *storage.SQLiteTracker
	Embedders *embedding.Registry
	Index     retrieval.Index
	Indexer   *indexer.Indexer
	LLM       *llm.Limited // nil unless built withLLM
	Generator *testgen.Generator
	Runner    *evaluate.Runner

	redisCache *embedding.RedisCache
	logger     *zap.Logger
	debug      bool
}

// Close releases every component and returns the joined errors.
func (c *Components) Close() error {
	var errs []error
	if c.Index != nil {
		errs = append(errs, c.Index.Close())
	}
	if c.Embedders != nil {
		errs = append(errs, c.Embedders.Close())
	}
	if c.redisCache != nil {
		errs = append(errs, c.redisCache.Close())
	}
	if c.Tracker != nil {
		errs = append(errs, c.Tracker.Close())
	}
	return errors.Join(errs...)
}

// componentLogger returns logger in debug mode and nil otherwise, so components stay quiet by default.
func (c *Components) componentLogger() *zap.Logger {
	if c.debug {
		return c.logger
	}
	return nil
}

// Pipeline returns the RAG pipeline under test for modelID.
func (c *Components) Pipeline(modelID string) *rag.Pipeline {
	return rag.NewPipeline(c.Indexer, c.Index, c.LLM, c.Config.Data.Dir, modelID,
		rag.WithTopK(c.Config.Retrieval.TopK),
		rag.WithLogger(c.componentLogger()))
}

// Driver returns an experiment driver over the pipeline for modelID. Progress goes to out.
func (c *Components) Driver(modelID string, out io.Writer) *experiment.Driver {
	return experiment.NewDriver(c.Indexer, c.Index, c.Generator, c.Runner, c.Pipeline(modelID),
		experiment.WithOutput(out),
		experiment.WithLogger(c.componentLogger()))
}

// Evaluate runs one seeded evaluation under modelID.
func (c *Components) Evaluate(ctx context.Context, modelID string, seed int64) (*experiment.Evaluation, error) {
	return c.Driver(modelID, nil).Evaluate(ctx, c.Config.Data.Dir, modelID, seed)
}

// initializeComponents builds the ledger, embedders, retrieval index, and
// indexer. The chat model and everything that needs it are built only when
// withLLM is set, so offline commands work without API keys.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, withLLM bool) (*Components, error) {
	c := &Components{Config: cfg, logger: logger, debug: cfg.Debug}
	ok := false
	defer func() {
		if !ok {
			_ = c.Close()
		}
	}()

	tracker, err := storage.NewSQLiteTracker(cfg.Storage.TrackerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracker: %w", err)
	}
	c.Tracker = tracker

	regOpts := []embedding.RegistryOption{embedding.WithLogger(c.componentLogger())}
	if cfg.Embedding.Cache == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			Password: envOrEmpty(cfg.Redis.PasswordEnv),
		})
		c.redisCache = embedding.NewRedisCache(client, "ragprobe:embedding:", cfg.Redis.TTL,
			embedding.WithRedisLogger(logger))
		regOpts = append(regOpts, embedding.WithCache(c.redisCache))
	}
	c.Embedders = embedding.NewRegistry(&cfg.Embedding, regOpts...)

	var semantic *retrieval.SemanticIndex
	if cfg.Retrieval.Mode != "keyword" {
		store, err := vector.NewStore(cfg, c.componentLogger())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector store: %w", err)
		}
		semantic = retrieval.NewSemanticIndex(store, c.Embedders,
			retrieval.WithSnapshot(cfg.Storage.IndexPath),
			retrieval.WithLogger(c.componentLogger()))
	}
	if cfg.Retrieval.Mode != "semantic" {
		if err := ensureParent(cfg.Storage.KeywordIndexPath); err != nil {
			return nil, err
		}
	}
	index, err := retrieval.New(cfg.Retrieval.Mode, semantic, cfg.Storage.KeywordIndexPath,
		cfg.Retrieval.KeywordWeight, cfg.Retrieval.SemanticWeight,
		retrieval.WithLogger(c.componentLogger()))
	if err != nil {
		if semantic != nil {
			_ = semantic.Close()
		}
		return nil, fmt.Errorf("failed to initialize retrieval index: %w", err)
	}
	c.Index = index

	c.Indexer = indexer.NewIndexer(tracker, index, &cfg.Chunking, extract.NewExtractor(),
		indexer.WithExtensions(cfg.Data.Extensions),
		indexer.WithLogger(c.componentLogger()))
	c.Runner = evaluate.NewRunner(evaluate.WithLogger(c.componentLogger()))

	if withLLM {
		model, err := llm.New(ctx, &cfg.LLM, c.componentLogger())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize chat model: %w", err)
		}
		c.LLM = model
		c.Generator = testgen.NewGenerator(tracker, model, testgen.WithLogger(c.componentLogger()))
	}

	if logger != nil {
		logger.Debug("components initialized",
			zap.String("retrieval_mode", cfg.Retrieval.Mode),
			zap.String("vector_backend", cfg.Vector.Backend),
			zap.Bool("llm", withLLM))
	}
	ok = true
	return c, nil
}

// ensureParent creates the directory that will hold path.
func ensureParent(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	return nil
}

func envOrEmpty(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
