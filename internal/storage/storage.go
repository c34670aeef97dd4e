// Package storage defines the ledger of tracked documents and generated question/answer pairs.
package storage

import (
	"context"

	"github.com/hyperjump/ragprobe/internal/models"
)

// Tracker records which source documents have been ingested under which
// embedding model, and stores one question/answer pair per chunk identity.
// Each call is its own unit of work.
type Tracker interface {
	// Document operations
	DocumentTracked(ctx context.Context, title, modelID string) (bool, error)
	TrackDocument(ctx context.Context, title, modelID string) error
	ListTracked(ctx context.Context, modelID string) ([]string, error)
	RemoveTracked(ctx context.Context, title, modelID string) error

	// Question operations
	HasQuestion(ctx context.Context, docID string) (bool, error)
	SaveQuestion(ctx context.Context, tc *models.TestCase) error
	LoadQuestion(ctx context.Context, docID string) (*models.TestCase, error)
	DeleteQuestion(ctx context.Context, docID string) error
	ListQuestions(ctx context.Context) ([]*models.TestCase, error)

	// Stats
	Counts(ctx context.Context) (*Counts, error)

	Close() error
}

// Counts summarizes the ledger.
type Counts struct {
	Documents int64            `json:"documents"`
	Questions int64            `json:"questions"`
	ByModel   map[string]int64 `json:"by_model"`
}
