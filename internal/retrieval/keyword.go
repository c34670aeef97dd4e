package retrieval

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/ragprobe/internal/errdefs"
	"github.com/hyperjump/ragprobe/internal/models"
	"go.uber.org/zap"
)

const (
	fieldContent = "content"
	keySep       = "\x1f"
)

// KeywordIndex implements Index with Bleve full-text search. Chunks of every
// model share one Bleve index; the model is both part of the document key and
// an exact-match field that every query is restricted to.
type KeywordIndex struct {
	index  bleve.Index
	logger *zap.Logger
}

// NewKeywordIndex creates or opens a Bleve index at path. An empty path keeps the index in memory.
// If you change the index mapping in code, remove the index directory to force a full re-index.
func NewKeywordIndex(path string, opts ...Option) (*KeywordIndex, error) {
	o := buildOptions(opts)
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so generated questions match chunk wording.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt(fieldContent, textFieldMapping)
	for _, name := range []string{models.MetaID, models.MetaSource, models.MetaPage, models.MetaEmbedding} {
		kw := bleve.NewTextFieldMapping()
		kw.Analyzer = keyword.Name
		docMapping.AddFieldMappingsAt(name, kw)
	}
	im.DefaultMapping = docMapping

	var (
		index bleve.Index
		err   error
	)
	switch {
	case path == "":
		index, err = bleve.NewMemOnly(im)
	case exists(path):
		index, err = bleve.Open(path)
	default:
		index, err = bleve.New(path, im)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open Bleve index: %w", err)
	}
	return &KeywordIndex{index: index, logger: o.logger}, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func docKey(modelID, id string) string {
	return modelID + keySep + id
}

func (b *KeywordIndex) modelQuery(modelID string) *blevequery.TermQuery {
	q := bleve.NewTermQuery(modelID)
	q.SetField(models.MetaEmbedding)
	return q
}

// Contains looks up each chunk by its document key.
func (b *KeywordIndex) Contains(ctx context.Context, modelID string, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		doc, err := b.index.Document(docKey(modelID, id))
		if err != nil {
			return nil, fmt.Errorf("%w: Bleve lookup failed: %v", errdefs.ErrExternalService, err)
		}
		out[id] = doc != nil
	}
	return out, nil
}

// Add indexes recs in a single batch.
func (b *KeywordIndex) Add(ctx context.Context, modelID string, recs []models.ChunkRecord) error {
	if len(recs) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for i := range recs {
		doc := make(map[string]interface{}, 5)
		for k, v := range recs[i].Metadata() {
			doc[k] = v
		}
		doc[models.MetaEmbedding] = modelID
		doc[fieldContent] = recs[i].Content
		if err := batch.Index(docKey(modelID, recs[i].ID), doc); err != nil {
			return fmt.Errorf("failed to batch chunk %s: %w", recs[i].ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("%w: Bleve batch failed: %v", errdefs.ErrExternalService, err)
	}
	if b.logger != nil {
		b.logger.Debug("chunks indexed for keyword search", zap.String("model", modelID), zap.Int("count", len(recs)))
	}
	return nil
}

// Query runs a match query over chunk content restricted to modelID.
func (b *KeywordIndex) Query(ctx context.Context, modelID, query string, k int) ([]models.RetrievedChunk, error) {
	if k <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	match := bleve.NewMatchQuery(query)
	match.SetField(fieldContent)
	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(match, b.modelQuery(modelID)))
	req.Size = k
	req.Fields = []string{"*"}
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: Bleve search failed: %v", errdefs.ErrExternalService, err)
	}
	out := make([]models.RetrievedChunk, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = fromFields(hit.Fields, hit.Score)
	}
	return out, nil
}

// IDs returns every chunk ID stored for modelID.
func (b *KeywordIndex) IDs(ctx context.Context, modelID string) ([]string, error) {
	n, err := b.Count(ctx, modelID)
	if err != nil || n == 0 {
		return nil, err
	}
	req := bleve.NewSearchRequest(b.modelQuery(modelID))
	req.Size = n
	req.Fields = []string{models.MetaID}
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: Bleve search failed: %v", errdefs.ErrExternalService, err)
	}
	ids := make([]string, 0, len(results.Hits))
	for _, hit := range results.Hits {
		ids = append(ids, strings.TrimPrefix(hit.ID, modelID+keySep))
	}
	sort.Strings(ids)
	return ids, nil
}

// Get fetches the stored fields of one chunk.
func (b *KeywordIndex) Get(ctx context.Context, modelID, id string) (*models.RetrievedChunk, error) {
	req := bleve.NewSearchRequest(bleve.NewDocIDQuery([]string{docKey(modelID, id)}))
	req.Size = 1
	req.Fields = []string{"*"}
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: Bleve search failed: %v", errdefs.ErrExternalService, err)
	}
	if len(results.Hits) == 0 {
		return nil, fmt.Errorf("%w: chunk %q under %q", errdefs.ErrNotFound, id, modelID)
	}
	rc := fromFields(results.Hits[0].Fields, 0)
	return &rc, nil
}

// Count returns the number of chunks stored for modelID.
func (b *KeywordIndex) Count(ctx context.Context, modelID string) (int, error) {
	req := bleve.NewSearchRequest(b.modelQuery(modelID))
	req.Size = 0
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("%w: Bleve search failed: %v", errdefs.ErrExternalService, err)
	}
	return int(results.Total), nil
}

// Close closes the Bleve index.
func (b *KeywordIndex) Close() error {
	return b.index.Close()
}

func fromFields(fields map[string]interface{}, score float64) models.RetrievedChunk {
	rc := models.RetrievedChunk{Score: score, Metadata: make(map[string]string, len(fields))}
	for k, v := range fields {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if k == fieldContent {
			rc.Content = s
			continue
		}
		rc.Metadata[k] = s
	}
	rc.ID = rc.Metadata[models.MetaID]
	return rc
}
