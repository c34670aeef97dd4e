package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"

	"github.com/hyperjump/ragprobe/internal/errdefs"
	"github.com/hyperjump/ragprobe/internal/models"
)

// SQLiteTracker implements Tracker using SQLite.
type SQLiteTracker struct {
	db *sql.DB
}

// NewSQLiteTracker opens or creates a SQLite ledger at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteTracker(dbPath string) (*SQLiteTracker, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteTracker{db: db}, nil
}

// qa_pairs.doc_id holds chunk identities, so it is unique on its own and
// carries no foreign key to documents.doc_title.
func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY,
		doc_title TEXT NOT NULL,
		embedding_model_id TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(doc_title, embedding_model_id)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_model ON documents(embedding_model_id);

	CREATE TABLE IF NOT EXISTS qa_pairs (
		id INTEGER PRIMARY KEY,
		doc_id TEXT NOT NULL UNIQUE,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

// unavailable marks a driver fault so callers can tell it apart from ErrNotFound.
func unavailable(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, errdefs.ErrStoreUnavailable, err)
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint &&
		(se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

// DocumentTracked reports whether title is tracked under modelID.
func (s *SQLiteTracker) DocumentTracked(ctx context.Context, title, modelID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM documents WHERE doc_title = ? AND embedding_model_id = ?`,
		title, modelID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("check document", err)
	}
	return true, nil
}

// TrackDocument records title under modelID. Tracking an already tracked pair is a no-op.
func (s *SQLiteTracker) TrackDocument(ctx context.Context, title, modelID string) error {
	if title == "" || modelID == "" {
		return fmt.Errorf("%w: document title and embedding model are required", errdefs.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (doc_title, embedding_model_id) VALUES (?, ?)
		 ON CONFLICT(doc_title, embedding_model_id) DO NOTHING`,
		title, modelID,
	)
	if err != nil {
		return unavailable("track document", err)
	}
	return nil
}

// ListTracked returns the titles tracked under modelID, ordered by title.
func (s *SQLiteTracker) ListTracked(ctx context.Context, modelID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_title FROM documents WHERE embedding_model_id = ? ORDER BY doc_title`,
		modelID,
	)
	if err != nil {
		return nil, unavailable("list documents", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, unavailable("scan document", err)
		}
		titles = append(titles, title)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list documents", err)
	}
	return titles, nil
}

// RemoveTracked deletes the (title, modelID) entry. Returns ErrNotFound if it was not tracked.
func (s *SQLiteTracker) RemoveTracked(ctx context.Context, title, modelID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE doc_title = ? AND embedding_model_id = ?`,
		title, modelID,
	)
	if err != nil {
		return unavailable("remove document", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return unavailable("remove document", err)
	}
	if n == 0 {
		return fmt.Errorf("document %s under %s: %w", title, modelID, errdefs.ErrNotFound)
	}
	return nil
}

// HasQuestion reports whether a question/answer pair exists for docID.
func (s *SQLiteTracker) HasQuestion(ctx context.Context, docID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM qa_pairs WHERE doc_id = ? LIMIT 1`, docID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("check question", err)
	}
	return true, nil
}

// SaveQuestion stores tc. A second pair for the same doc_id returns ErrConflict.
func (s *SQLiteTracker) SaveQuestion(ctx context.Context, tc *models.TestCase) error {
	if tc == nil || tc.DocID == "" {
		return fmt.Errorf("%w: test case needs a doc_id", errdefs.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO qa_pairs (doc_id, question, answer) VALUES (?, ?, ?)`,
		tc.DocID, tc.Question, tc.Answer,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("question for %s: %w", tc.DocID, errdefs.ErrConflict)
	}
	if err != nil {
		return unavailable("save question", err)
	}
	return nil
}

// LoadQuestion returns the pair stored for docID, or ErrNotFound.
func (s *SQLiteTracker) LoadQuestion(ctx context.Context, docID string) (*models.TestCase, error) {
	tc := models.TestCase{DocID: docID}
	err := s.db.QueryRowContext(ctx,
		`SELECT question, answer FROM qa_pairs WHERE doc_id = ?`, docID,
	).Scan(&tc.Question, &tc.Answer)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("question for %s: %w", docID, errdefs.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("load question", err)
	}
	return &tc, nil
}

// DeleteQuestion removes the pair stored for docID so it can be regenerated.
// Returns ErrNotFound if there was none.
func (s *SQLiteTracker) DeleteQuestion(ctx context.Context, docID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM qa_pairs WHERE doc_id = ?`, docID)
	if err != nil {
		return unavailable("delete question", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return unavailable("delete question", err)
	}
	if n == 0 {
		return fmt.Errorf("question for %s: %w", docID, errdefs.ErrNotFound)
	}
	return nil
}

// ListQuestions returns all stored pairs ordered by doc_id.
func (s *SQLiteTracker) ListQuestions(ctx context.Context) ([]*models.TestCase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_id, question, answer FROM qa_pairs ORDER BY doc_id`)
	if err != nil {
		return nil, unavailable("list questions", err)
	}
	defer rows.Close()

	var out []*models.TestCase
	for rows.Next() {
		var tc models.TestCase
		if err := rows.Scan(&tc.DocID, &tc.Question, &tc.Answer); err != nil {
			return nil, unavailable("scan question", err)
		}
		out = append(out, &tc)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list questions", err)
	}
	return out, nil
}

// Counts returns document and question totals with per-model document counts.
func (s *SQLiteTracker) Counts(ctx context.Context) (*Counts, error) {
	c := &Counts{ByModel: make(map[string]int64)}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM qa_pairs`).Scan(&c.Questions); err != nil {
		return nil, unavailable("count questions", err)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT embedding_model_id, COUNT(*) FROM documents GROUP BY embedding_model_id`)
	if err != nil {
		return nil, unavailable("count documents", err)
	}
	defer rows.Close()
	for rows.Next() {
		var model string
		var n int64
		if err := rows.Scan(&model, &n); err != nil {
			return nil, unavailable("scan count", err)
		}
		c.ByModel[model] = n
		c.Documents += n
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("count documents", err)
	}
	return c, nil
}

// Close closes the database.
func (s *SQLiteTracker) Close() error {
	return s.db.Close()
}
