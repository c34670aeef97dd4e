package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/ragprobe/internal/config"
	"github.com/hyperjump/ragprobe/internal/errdefs"
	"github.com/hyperjump/ragprobe/internal/extract"
	"github.com/hyperjump/ragprobe/internal/models"
	"github.com/hyperjump/ragprobe/internal/storage"
)

// memChunks is an in-memory ChunkStore keyed by model then chunk ID.
type memChunks struct {
	recs map[string]map[string]models.ChunkRecord
}

func newMemChunks() *memChunks {
	return &memChunks{recs: make(map[string]map[string]models.ChunkRecord)}
}

func (m *memChunks) Contains(_ context.Context, modelID string, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		_, ok := m.recs[modelID][id]
		out[id] = ok
	}
	return out, nil
}

func (m *memChunks) Add(_ context.Context, modelID string, recs []models.ChunkRecord) error {
	if m.recs[modelID] == nil {
		m.recs[modelID] = make(map[string]models.ChunkRecord)
	}
	for _, r := range recs {
		if _, dup := m.recs[modelID][r.ID]; dup {
			return errors.New("duplicate chunk " + r.ID)
		}
		m.recs[modelID][r.ID] = r
	}
	return nil
}

func testIndexer(t *testing.T, dir string, opts ...IndexerOption) (*Indexer, *storage.SQLiteTracker, *memChunks) {
	t.Helper()
	tracker, err := storage.NewSQLiteTracker(filepath.Join(dir, "tracker.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = tracker.Close() })
	chunks := newMemChunks()
	cfg := &config.ChunkingConfig{Size: 40, Overlap: 8}
	return NewIndexer(tracker, chunks, cfg, extract.NewExtractor(), opts...), tracker, chunks
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestIngest_idempotent(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "data")
	if err := os.Mkdir(data, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(data, "a.txt"), strings.Repeat("alpha beta gamma delta ", 10))
	writeFile(t, filepath.Join(data, "b.txt"), "short note\fsecond page")
	idx, tracker, chunks := testIndexer(t, dir)
	ctx := context.Background()

	n, err := idx.Ingest(ctx, data, "model-a")
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 || n != len(chunks.recs["model-a"]) {
		t.Errorf("first ingest = %d, store holds %d", n, len(chunks.recs["model-a"]))
	}
	for _, title := range []string{"a.txt", "b.txt"} {
		ok, err := tracker.DocumentTracked(ctx, title, "model-a")
		if err != nil || !ok {
			t.Errorf("%s not tracked: %v", title, err)
		}
	}
	if _, ok := chunks.recs["model-a"]["doc: b.txt page:1:0"]; !ok {
		t.Error("expected chunk for second page of b.txt")
	}

	n, err = idx.Ingest(ctx, data, "model-a")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("second ingest = %d, want 0", n)
	}
}

func TestIngest_separateModels(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "data")
	if err := os.Mkdir(data, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(data, "f.txt"), "some content")
	idx, _, chunks := testIndexer(t, dir)
	ctx := context.Background()

	for _, model := range []string{"model-a", "model-b"} {
		n, err := idx.Ingest(ctx, data, model)
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("ingest under %s = %d, want 1", model, n)
		}
		rec, ok := chunks.recs[model]["doc: f.txt page:0:0"]
		if !ok || rec.EmbeddingModelID != model {
			t.Errorf("chunk under %s = %+v", model, rec)
		}
	}
}

func TestIngest_emptyDirectory(t *testing.T) {
	dir := t.TempDir()
	idx, _, _ := testIndexer(t, dir)
	empty := filepath.Join(dir, "empty")
	if err := os.Mkdir(empty, 0755); err != nil {
		t.Fatal(err)
	}
	n, err := idx.Ingest(context.Background(), empty, "m")
	if err != nil || n != 0 {
		t.Errorf("Ingest(empty) = %d, %v; want 0, nil", n, err)
	}
}

func TestIngest_missingDirectory(t *testing.T) {
	dir := t.TempDir()
	idx, _, _ := testIndexer(t, dir)
	_, err := idx.Ingest(context.Background(), filepath.Join(dir, "nope"), "m")
	if !errors.Is(err, errdefs.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
	file := filepath.Join(dir, "file.txt")
	writeFile(t, file, "x")
	if _, err := idx.Ingest(context.Background(), file, "m"); !errors.Is(err, errdefs.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput for non-directory", err)
	}
}

func TestIngest_extensionFilterAndSubdirs(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "data")
	if err := os.MkdirAll(filepath.Join(data, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(data, "keep.txt"), "keep me")
	writeFile(t, filepath.Join(data, "skip.bin"), "skip me")
	writeFile(t, filepath.Join(data, "nested", "deep.txt"), "not scanned")
	idx, tracker, _ := testIndexer(t, dir, WithExtensions([]string{".txt"}))
	ctx := context.Background()

	if _, err := idx.Ingest(ctx, data, "m"); err != nil {
		t.Fatal(err)
	}
	titles, err := tracker.ListTracked(ctx, "m")
	if err != nil {
		t.Fatal(err)
	}
	if len(titles) != 1 || titles[0] != "keep.txt" {
		t.Errorf("tracked = %v, want [keep.txt]", titles)
	}
}

func TestIngest_tracksBeforeChunking(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "data")
	if err := os.Mkdir(data, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(data, "broken.docx"), "not a zip archive")
	idx, tracker, _ := testIndexer(t, dir)
	ctx := context.Background()

	if _, err := idx.Ingest(ctx, data, "m"); err == nil {
		t.Fatal("expected extraction error")
	}
	ok, err := tracker.DocumentTracked(ctx, "broken.docx", "m")
	if err != nil || !ok {
		t.Errorf("document should be tracked before chunking: %v, %v", ok, err)
	}
}

func TestReconcile_repairsMissingChunks(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "data")
	if err := os.Mkdir(data, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(data, "a.txt"), strings.Repeat("word ", 30))
	idx, _, chunks := testIndexer(t, dir)
	ctx := context.Background()

	first, err := idx.Ingest(ctx, data, "m")
	if err != nil {
		t.Fatal(err)
	}
	delete(chunks.recs["m"], "doc: a.txt page:0:0")

	n, err := idx.Ingest(ctx, data, "m")
	if err != nil || n != 0 {
		t.Fatalf("Ingest after loss = %d, %v; want 0, nil", n, err)
	}
	n, err = idx.Reconcile(ctx, data, "m")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Reconcile = %d, want 1", n)
	}
	if len(chunks.recs["m"]) != first {
		t.Errorf("store holds %d chunks, want %d", len(chunks.recs["m"]), first)
	}
}

func TestIngest_badFileDoesNotStrandOthers(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "data")
	if err := os.Mkdir(data, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(data, "a.pdf"), "not a pdf")
	writeFile(t, filepath.Join(data, "b.txt"), "the good document survives")
	idx, tracker, chunks := testIndexer(t, dir)
	ctx := context.Background()

	n, err := idx.Ingest(ctx, data, "m")
	if err == nil || !strings.Contains(err.Error(), "a.pdf") {
		t.Fatalf("Ingest error = %v, want failure naming a.pdf", err)
	}
	if n != 1 {
		t.Errorf("Ingest = %d, want 1 chunk from b.txt", n)
	}
	if _, ok := chunks.recs["m"]["doc: b.txt page:0:0"]; !ok {
		t.Errorf("b.txt was not indexed: %v", chunks.recs["m"])
	}
	for _, title := range []string{"a.pdf", "b.txt"} {
		ok, err := tracker.DocumentTracked(ctx, title, "m")
		if err != nil || !ok {
			t.Errorf("DocumentTracked(%s) = %v, %v", title, ok, err)
		}
	}

	n, err = idx.Ingest(ctx, data, "m")
	if err != nil || n != 0 {
		t.Errorf("second Ingest = %d, %v; want 0, nil", n, err)
	}
}

func TestIngest_canceledContext(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "data")
	if err := os.Mkdir(data, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(data, "a.txt"), "first")
	idx, _, chunks := testIndexer(t, dir)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := idx.ingestFiles(ctx, []string{filepath.Join(data, "a.txt")}, "m")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ingestFiles error = %v, want context.Canceled", err)
	}
	if n != 0 || len(chunks.recs["m"]) != 0 {
		t.Errorf("canceled ingestFiles added %d chunks", n)
	}
}

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext     string
		allowed []string
		want    bool
	}{
		{".txt", []string{".txt", ".md"}, true},
		{".TXT", []string{".txt"}, true},
		{".pdf", []string{"pdf"}, true},
		{".go", []string{".txt"}, false},
		{"", []string{".txt"}, false},
	}
	for _, tt := range tests {
		if got := extensionAllowed(tt.ext, tt.allowed); got != tt.want {
			t.Errorf("extensionAllowed(%q, %v) = %v, want %v", tt.ext, tt.allowed, got, tt.want)
		}
	}
}
