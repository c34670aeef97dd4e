// Package models defines core data structures for chunks, test cases, and evaluation results.
package models

import "strconv"

// NoPage marks a raw chunk whose loader could not determine a page number.
const NoPage = -1

// RawChunk is a slice of a source document as produced by the splitter, before identity assignment.
type RawChunk struct {
	Source  string `json:"source"`
	Page    int    `json:"page"`
	Content string `json:"content"`
}

// ChunkRecord is a chunk with a stable identity, tagged with the embedding model it is indexed under.
type ChunkRecord struct {
	ID               string `json:"id"`
	Source           string `json:"source"`
	Page             int    `json:"page"`
	Ordinal          int    `json:"ordinal"`
	Content          string `json:"content"`
	EmbeddingModelID string `json:"embedding_model_id"`
}

// Metadata returns the payload stored alongside the chunk in a retrieval index.
func (c *ChunkRecord) Metadata() map[string]string {
	return map[string]string{
		MetaID:        c.ID,
		MetaSource:    c.Source,
		MetaPage:      strconv.Itoa(c.Page),
		MetaEmbedding: c.EmbeddingModelID,
	}
}

// Metadata keys carried by indexed chunks.
const (
	MetaID        = "id"
	MetaSource    = "source"
	MetaPage      = "page"
	MetaEmbedding = "embedding"
)

// RetrievedChunk is one hit returned by a retrieval index.
// ID is empty when the hit carried no identity in its metadata.
type RetrievedChunk struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// TrackedDocument is a source file recorded as ingested under an embedding model.
type TrackedDocument struct {
	Title            string `json:"doc_title"`
	EmbeddingModelID string `json:"embedding_model_id"`
}
