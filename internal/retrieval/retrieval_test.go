package retrieval

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/ragprobe/internal/embedding"
	"github.com/hyperjump/ragprobe/internal/errdefs"
	"github.com/hyperjump/ragprobe/internal/models"
	"github.com/hyperjump/ragprobe/internal/vector"
)

type fakeEmbedders struct {
	get func(ctx context.Context, modelID string) (embedding.Embedder, error)
}

func (f *fakeEmbedders) Get(ctx context.Context, modelID string) (embedding.Embedder, error) {
	return f.get(ctx, modelID)
}

func mockEmbedders() *fakeEmbedders {
	e := embedding.NewMockEmbedder(128)
	return &fakeEmbedders{get: func(context.Context, string) (embedding.Embedder, error) { return e, nil }}
}

func testRecords(modelID string) []models.ChunkRecord {
	return []models.ChunkRecord{
		{ID: "doc: a.txt page:0:0", Source: "a.txt", Page: 0, Ordinal: 0, Content: "the quick brown fox jumps over the lazy dog", EmbeddingModelID: modelID},
		{ID: "doc: a.txt page:0:1", Source: "a.txt", Page: 0, Ordinal: 1, Content: "photosynthesis converts sunlight into chemical energy", EmbeddingModelID: modelID},
		{ID: "doc: b.txt page:0:0", Source: "b.txt", Page: 0, Ordinal: 0, Content: "the mitochondria is the powerhouse of the cell", EmbeddingModelID: modelID},
	}
}

func TestSemanticIndex_AddQuery(t *testing.T) {
	ctx := context.Background()
	idx := NewSemanticIndex(vector.NewMemoryStore(), mockEmbedders())
	defer idx.Close()

	if err := idx.Add(ctx, "m", testRecords("m")); err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Query(ctx, "m", "does photosynthesis convert sunlight into chemical energy", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ID != "doc: a.txt page:0:1" {
		t.Errorf("top hit = %q", hits[0].ID)
	}
	if hits[0].Metadata[models.MetaSource] != "a.txt" {
		t.Errorf("metadata = %v", hits[0].Metadata)
	}

	present, err := idx.Contains(ctx, "m", []string{"doc: b.txt page:0:0", "doc: c.txt page:0:0"})
	if err != nil {
		t.Fatal(err)
	}
	if !present["doc: b.txt page:0:0"] || present["doc: c.txt page:0:0"] {
		t.Errorf("Contains = %v", present)
	}
	if other, _ := idx.Contains(ctx, "other-model", []string{"doc: b.txt page:0:0"}); other["doc: b.txt page:0:0"] {
		t.Error("chunks must not be visible under another model")
	}
}

func TestSemanticIndex_GetIDsCount(t *testing.T) {
	ctx := context.Background()
	idx := NewSemanticIndex(vector.NewMemoryStore(), mockEmbedders(), WithBatchSize(2))
	if err := idx.Add(ctx, "m", testRecords("m")); err != nil {
		t.Fatal(err)
	}
	ids, err := idx.IDs(ctx, "m")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 || ids[0] != "doc: a.txt page:0:0" {
		t.Errorf("IDs = %v", ids)
	}
	c, err := idx.Get(ctx, "m", "doc: b.txt page:0:0")
	if err != nil {
		t.Fatal(err)
	}
	if c.Content != "the mitochondria is the powerhouse of the cell" {
		t.Errorf("content = %q", c.Content)
	}
	if _, err := idx.Get(ctx, "m", "missing"); !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
	if n, _ := idx.Count(ctx, "m"); n != 3 {
		t.Errorf("Count = %d", n)
	}
}

func TestSemanticIndex_Snapshot(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.bin")
	idx := NewSemanticIndex(vector.NewMemoryStore(), mockEmbedders(), WithSnapshot(path))
	if err := idx.Add(ctx, "m", testRecords("m")); err != nil {
		t.Fatal(err)
	}
	reloaded := vector.NewMemoryStore()
	if err := reloaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if n, _ := reloaded.Count(ctx, "m"); n != 3 {
		t.Errorf("snapshot count = %d, want 3", n)
	}
}

func TestSemanticIndex_EmbedderFailure(t *testing.T) {
	ctx := context.Background()
	failing := &fakeEmbedders{get: func(context.Context, string) (embedding.Embedder, error) {
		return &failingEmbedder{}, nil
	}}
	idx := NewSemanticIndex(vector.NewMemoryStore(), failing)
	if err := idx.Add(ctx, "m", testRecords("m")); !errors.Is(err, errdefs.ErrExternalService) {
		t.Errorf("Add error = %v, want ErrExternalService", err)
	}
	if _, err := idx.Query(ctx, "m", "q", 5); !errors.Is(err, errdefs.ErrExternalService) {
		t.Errorf("Query error = %v, want ErrExternalService", err)
	}
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("provider down")
}
func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("provider down")
}
func (failingEmbedder) Dimensions() int { return 4 }
func (failingEmbedder) Close() error    { return nil }

func TestToRetrieved_MissingIdentity(t *testing.T) {
	rc := toRetrieved(&vector.Hit{ID: "x", Content: "c", Metadata: map[string]string{"source": "a.pdf"}})
	if rc.ID != "" {
		t.Errorf("hit without id metadata should have empty ID, got %q", rc.ID)
	}
}

func TestKeywordIndex(t *testing.T) {
	ctx := context.Background()
	idx, err := NewKeywordIndex("")
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	if err := idx.Add(ctx, "m", testRecords("m")); err != nil {
		t.Fatal(err)
	}
	if err := idx.Add(ctx, "other", testRecords("other")[:1]); err != nil {
		t.Fatal(err)
	}

	hits, err := idx.Query(ctx, "m", "mitochondria powerhouse", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 || hits[0].ID != "doc: b.txt page:0:0" {
		t.Fatalf("hits = %+v", hits)
	}
	if hits[0].Content == "" {
		t.Error("content should be stored")
	}

	if n, _ := idx.Count(ctx, "m"); n != 3 {
		t.Errorf("Count(m) = %d, want 3", n)
	}
	if n, _ := idx.Count(ctx, "other"); n != 1 {
		t.Errorf("Count(other) = %d, want 1", n)
	}
	foxHits, _ := idx.Query(ctx, "other", "mitochondria", 5)
	if len(foxHits) != 0 {
		t.Errorf("query under other model leaked hits: %+v", foxHits)
	}

	present, err := idx.Contains(ctx, "other", []string{"doc: a.txt page:0:0", "doc: b.txt page:0:0"})
	if err != nil {
		t.Fatal(err)
	}
	if !present["doc: a.txt page:0:0"] || present["doc: b.txt page:0:0"] {
		t.Errorf("Contains = %v", present)
	}

	ids, _ := idx.IDs(ctx, "m")
	if len(ids) != 3 || ids[2] != "doc: b.txt page:0:0" {
		t.Errorf("IDs = %v", ids)
	}
	got, err := idx.Get(ctx, "m", "doc: a.txt page:0:1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "doc: a.txt page:0:1" || got.Metadata[models.MetaPage] != "0" {
		t.Errorf("Get = %+v", got)
	}
	if _, err := idx.Get(ctx, "m", "nope"); !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("Get(nope) error = %v, want ErrNotFound", err)
	}
}

func TestKeywordIndex_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "keyword.bleve")
	idx, err := NewKeywordIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Add(ctx, "m", testRecords("m")); err != nil {
		t.Fatal(err)
	}
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}
	reopened, err := NewKeywordIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if n, _ := reopened.Count(ctx, "m"); n != 3 {
		t.Errorf("Count after reopen = %d, want 3", n)
	}
}

func TestHybridIndex(t *testing.T) {
	ctx := context.Background()
	sem := NewSemanticIndex(vector.NewMemoryStore(), mockEmbedders())
	kw, err := NewKeywordIndex("")
	if err != nil {
		t.Fatal(err)
	}
	idx := NewHybridIndex(sem, kw, 0.3, 0.7)
	defer idx.Close()

	recs := testRecords("m")
	if err := sem.Add(ctx, "m", recs[:1]); err != nil {
		t.Fatal(err)
	}
	present, _ := idx.Contains(ctx, "m", []string{recs[0].ID})
	if present[recs[0].ID] {
		t.Error("chunk only in the semantic index should not count as present")
	}

	if err := idx.Add(ctx, "m", recs); err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Query(ctx, "m", "quick brown fox lazy dog", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ID != recs[0].ID {
		t.Errorf("top hit = %q, want %q", hits[0].ID, recs[0].ID)
	}
	if hits[0].Content == "" {
		t.Error("fused hit should carry content")
	}
}

func TestFuseHits(t *testing.T) {
	kw := []models.RetrievedChunk{{ID: "a", Score: 4, Content: "alpha"}, {ID: "b", Score: 2}}
	sem := []models.RetrievedChunk{{ID: "b", Score: 0.9, Content: "beta"}, {ID: "c", Score: 0.8, Content: "gamma"}}
	fused := fuseHits(kw, sem, 0.3, 0.7, 10)
	if len(fused) != 3 {
		t.Fatalf("expected 3 results, got %d", len(fused))
	}
	if fused[0].ID != "b" {
		t.Errorf("b should win with both signals, got %s", fused[0].ID)
	}
	if fused[0].Content != "beta" {
		t.Errorf("content should be filled from the semantic hit, got %q", fused[0].Content)
	}
	// b: 0.3*0.5 + 0.7*0.9
	if got := fused[0].Score; got < 0.779 || got > 0.781 {
		t.Errorf("fused score of b = %v, want 0.78", got)
	}
	if top := fuseHits(kw, sem, 0.3, 0.7, 1); len(top) != 1 || top[0].ID != "b" {
		t.Errorf("top-1 = %+v", top)
	}
}

func TestFuseHits_edgeCases(t *testing.T) {
	if got := fuseHits(nil, nil, 0.3, 0.7, 5); len(got) != 0 {
		t.Errorf("empty inputs gave %v", got)
	}
	zero := []models.RetrievedChunk{{ID: "z", Score: 0}, {ID: "y", Score: 0}}
	got := fuseHits(zero, nil, 1, 0, 5)
	if len(got) != 2 || got[0].ID != "y" || got[0].Score != 0 {
		t.Errorf("zero keyword scores should tie-break by id: %+v", got)
	}
}

func TestNew(t *testing.T) {
	sem := NewSemanticIndex(vector.NewMemoryStore(), mockEmbedders())
	tests := []struct {
		mode    string
		wantErr bool
	}{
		{"semantic", false},
		{"keyword", false},
		{"hybrid", false},
		{"fuzzy", true},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			_, err := New(tt.mode, sem, "", 0.3, 0.7)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%q) error = %v", tt.mode, err)
			}
			if err != nil && !errors.Is(err, errdefs.ErrConfig) {
				t.Errorf("error = %v, want ErrConfig", err)
			}
		})
	}
	if _, err := New("hybrid", nil, "", 0.3, 0.7); !errors.Is(err, errdefs.ErrConfig) {
		t.Errorf("hybrid without semantic index error = %v, want ErrConfig", err)
	}
}
