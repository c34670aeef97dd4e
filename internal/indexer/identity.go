package indexer

import (
	"fmt"

	"github.com/hyperjump/ragprobe/internal/errdefs"
	"github.com/hyperjump/ragprobe/internal/models"
)

// PageID returns the page identity "doc: {source} page:{page}".
func PageID(source string, page int) string {
	return fmt.Sprintf("doc: %s page:%d", source, page)
}

// ChunkID returns the chunk identity "{page_id}:{ordinal}".
func ChunkID(source string, page, ordinal int) string {
	return fmt.Sprintf("%s:%d", PageID(source, page), ordinal)
}

// AssignIDs gives each chunk a stable identity and tags it with modelID.
// The ordinal restarts at 0 whenever the page identity differs from the
// preceding chunk's and increments otherwise, so identical ordered input
// always yields identical IDs. A chunk without a source or page fails the
// whole call with errdefs.ErrInvalidChunk.
func AssignIDs(chunks []models.RawChunk, modelID string) ([]models.ChunkRecord, error) {
	out := make([]models.ChunkRecord, 0, len(chunks))
	lastPageID := ""
	ordinal := 0
	for i, c := range chunks {
		if c.Source == "" || c.Page < 0 {
			return nil, fmt.Errorf("chunk %d (source %q, page %d): %w", i, c.Source, c.Page, errdefs.ErrInvalidChunk)
		}
		pageID := PageID(c.Source, c.Page)
		if pageID == lastPageID {
			ordinal++
		} else {
			ordinal = 0
		}
		lastPageID = pageID
		out = append(out, models.ChunkRecord{
			ID:               fmt.Sprintf("%s:%d", pageID, ordinal),
			Source:           c.Source,
			Page:             c.Page,
			Ordinal:          ordinal,
			Content:          c.Content,
			EmbeddingModelID: modelID,
		})
	}
	return out, nil
}
