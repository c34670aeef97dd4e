// Package indexer splits knowledge files into identified chunks and registers them with a retrieval index.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/ragprobe/internal/config"
	"github.com/hyperjump/ragprobe/internal/errdefs"
	"github.com/hyperjump/ragprobe/internal/extract"
	"github.com/hyperjump/ragprobe/internal/metrics"
	"github.com/hyperjump/ragprobe/internal/models"
	"go.uber.org/zap"
)

// Ledger records which documents have been ingested under which embedding model.
type Ledger interface {
	DocumentTracked(ctx context.Context, title, modelID string) (bool, error)
	TrackDocument(ctx context.Context, title, modelID string) error
}

// ChunkStore is the retrieval index as seen by ingestion.
type ChunkStore interface {
	Contains(ctx context.Context, modelID string, ids []string) (map[string]bool, error)
	Add(ctx context.Context, modelID string, recs []models.ChunkRecord) error
}

// Indexer ingests files from a knowledge directory.
type Indexer struct {
	ledger     Ledger
	chunks     ChunkStore
	splitter   *Splitter
	extractor  *extract.Extractor
	extensions []string
	logger     *zap.Logger // optional; when set, logs debug events
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (file tracked, chunks added, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithExtensions restricts ingestion to files with one of exts (case-insensitive).
// Without it every regular file is ingested.
func WithExtensions(exts []string) IndexerOption {
	return func(idx *Indexer) { idx.extensions = exts }
}

// NewIndexer creates an indexer. extractor may be nil; when nil, files are read as plain text.
func NewIndexer(ledger Ledger, chunks ChunkStore, cfg *config.ChunkingConfig, extractor *extract.Extractor, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		ledger:    ledger,
		chunks:    chunks,
		splitter:  NewSplitter(cfg.Size, cfg.Overlap),
		extractor: extractor,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Ingest scans dir (non-recursively) for files not yet tracked under modelID,
// tracks each before chunking, then adds the chunks the index does not already
// hold. It returns the number of newly indexed chunks; nothing new is a no-op.
func (idx *Indexer) Ingest(ctx context.Context, dir, modelID string) (int, error) {
	files, err := idx.scan(dir)
	if err != nil {
		return 0, err
	}
	var pending []string
	for _, path := range files {
		title := filepath.Base(path)
		tracked, err := idx.ledger.DocumentTracked(ctx, title, modelID)
		if err != nil {
			return 0, fmt.Errorf("failed to check document %s: %w", title, err)
		}
		if tracked {
			continue
		}
		if err := idx.ledger.TrackDocument(ctx, title, modelID); err != nil {
			return 0, fmt.Errorf("failed to track document %s: %w", title, err)
		}
		if idx.logger != nil {
			idx.logger.Info("new document found", zap.String("title", title), zap.String("embedding", modelID))
		}
		pending = append(pending, path)
	}
	if len(pending) == 0 {
		if idx.logger != nil {
			idx.logger.Debug("no new documents to ingest", zap.String("embedding", modelID))
		}
		return 0, nil
	}
	return idx.ingestFiles(ctx, pending, modelID)
}

// Reconcile re-runs the chunk-level check for files already tracked under
// modelID, adding chunks missing after an interrupted ingestion.
func (idx *Indexer) Reconcile(ctx context.Context, dir, modelID string) (int, error) {
	files, err := idx.scan(dir)
	if err != nil {
		return 0, err
	}
	var tracked []string
	for _, path := range files {
		ok, err := idx.ledger.DocumentTracked(ctx, filepath.Base(path), modelID)
		if err != nil {
			return 0, fmt.Errorf("failed to check document %s: %w", filepath.Base(path), err)
		}
		if ok {
			tracked = append(tracked, path)
		}
	}
	return idx.ingestFiles(ctx, tracked, modelID)
}

// ingestFiles indexes every path; a file that fails does not stop the rest.
// Failures are joined into the returned error alongside the chunks added.
func (idx *Indexer) ingestFiles(ctx context.Context, paths []string, modelID string) (int, error) {
	total := 0
	var errs []error
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		n, err := idx.IngestFile(ctx, path, modelID)
		total += n
		if err != nil {
			if idx.logger != nil {
				idx.logger.Warn("failed to ingest file", zap.String("path", path), zap.Error(err))
			}
			errs = append(errs, err)
		}
	}
	metrics.ChunksIndexed.WithLabelValues(modelID).Add(float64(total))
	return total, errors.Join(errs...)
}

// IngestFile loads, splits, and identifies the chunks of one file and adds
// those the index does not hold under modelID. It does not touch the ledger.
func (idx *Indexer) IngestFile(ctx context.Context, path, modelID string) (int, error) {
	pages, err := idx.loadPages(path)
	if err != nil {
		return 0, fmt.Errorf("failed to load %s: %w", path, err)
	}
	raw := idx.splitter.SplitPages(filepath.Base(path), pages)
	recs, err := AssignIDs(raw, modelID)
	if err != nil {
		return 0, fmt.Errorf("failed to assign chunk ids for %s: %w", path, err)
	}
	if len(recs) == 0 {
		return 0, nil
	}
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	present, err := idx.chunks.Contains(ctx, modelID, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to check existing chunks: %w", err)
	}
	missing := make([]models.ChunkRecord, 0, len(recs))
	for _, r := range recs {
		if !present[r.ID] {
			missing = append(missing, r)
		}
	}
	if len(missing) == 0 {
		if idx.logger != nil {
			idx.logger.Debug("no new chunks", zap.String("path", path))
		}
		return 0, nil
	}
	if err := idx.chunks.Add(ctx, modelID, missing); err != nil {
		return 0, fmt.Errorf("failed to add chunks: %w", err)
	}
	if idx.logger != nil {
		idx.logger.Info("chunks added",
			zap.String("path", path),
			zap.Int("added", len(missing)),
			zap.Int("existing", len(recs)-len(missing)))
	}
	return len(missing), nil
}

// scan returns the regular files in dir with an allowed extension, sorted by name.
func (idx *Indexer) scan(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: stat data directory: %v", errdefs.ErrInvalidInput, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: not a directory: %s", errdefs.ErrInvalidInput, dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read data directory: %v", errdefs.ErrInvalidInput, err)
	}
	var files []string
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if len(idx.extensions) > 0 && !extensionAllowed(filepath.Ext(path), idx.extensions) {
			continue
		}
		// Resolve symlinks so only regular files are ingested.
		finfo, err := os.Stat(path)
		if err != nil || !finfo.Mode().IsRegular() {
			continue
		}
		files = append(files, path)
	}
	return files, nil
}

func (idx *Indexer) loadPages(path string) ([]extract.Page, error) {
	if idx.extractor != nil {
		return idx.extractor.Pages(path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return []extract.Page{{Number: 0, Text: string(content)}}, nil
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
