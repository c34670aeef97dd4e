package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperjump/ragprobe/internal/models"
)

type fakeIngester struct {
	ingest func(ctx context.Context, dir, modelID string) (int, error)
}

func (f *fakeIngester) Ingest(ctx context.Context, dir, modelID string) (int, error) {
	return f.ingest(ctx, dir, modelID)
}

type fakeRetriever struct {
	query func(ctx context.Context, modelID, query string, k int) ([]models.RetrievedChunk, error)
}

func (f *fakeRetriever) Query(ctx context.Context, modelID, query string, k int) ([]models.RetrievedChunk, error) {
	return f.query(ctx, modelID, query, k)
}

type fakeAnswerer struct {
	answer func(ctx context.Context, query, contextText string) (string, error)
}

func (f *fakeAnswerer) Answer(ctx context.Context, query, contextText string) (string, error) {
	return f.answer(ctx, query, contextText)
}

func TestPipeline_Generate(t *testing.T) {
	var calls []string
	ing := &fakeIngester{ingest: func(_ context.Context, dir, modelID string) (int, error) {
		calls = append(calls, "ingest:"+dir+":"+modelID)
		return 0, nil
	}}
	ret := &fakeRetriever{query: func(_ context.Context, modelID, query string, k int) ([]models.RetrievedChunk, error) {
		calls = append(calls, "query")
		if k != DefaultTopK {
			t.Errorf("k = %d, want %d", k, DefaultTopK)
		}
		return []models.RetrievedChunk{
			{ID: "doc: a.pdf page:0:0", Content: "first"},
			{ID: "", Content: "second"},
		}, nil
	}}
	var gotContext string
	ans := &fakeAnswerer{answer: func(_ context.Context, query, contextText string) (string, error) {
		calls = append(calls, "answer")
		gotContext = contextText
		return "True", nil
	}}

	p := NewPipeline(ing, ret, ans, "/data", "m")
	answer, sources, err := p.Generate(context.Background(), "Is it?")
	if err != nil {
		t.Fatal(err)
	}
	if answer != "True" {
		t.Errorf("answer = %q", answer)
	}
	if len(sources) != 2 || sources[0] != "doc: a.pdf page:0:0" || sources[1] != "" {
		t.Errorf("sources = %q", sources)
	}
	if gotContext != "first\n\n---\n\nsecond" {
		t.Errorf("context = %q", gotContext)
	}
	want := []string{"ingest:/data:m", "query", "answer"}
	for i := range want {
		if i >= len(calls) || calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}
}

func TestPipeline_Errors(t *testing.T) {
	boom := errors.New("boom")
	okIngest := &fakeIngester{ingest: func(context.Context, string, string) (int, error) { return 0, nil }}
	okQuery := &fakeRetriever{query: func(context.Context, string, string, int) ([]models.RetrievedChunk, error) { return nil, nil }}
	okAnswer := &fakeAnswerer{answer: func(context.Context, string, string) (string, error) { return "", nil }}

	tests := []struct {
		name string
		p    *Pipeline
	}{
		{"ingest", NewPipeline(&fakeIngester{ingest: func(context.Context, string, string) (int, error) { return 0, boom }}, okQuery, okAnswer, "d", "m")},
		{"query", NewPipeline(okIngest, &fakeRetriever{query: func(context.Context, string, string, int) ([]models.RetrievedChunk, error) { return nil, boom }}, okAnswer, "d", "m")},
		{"answer", NewPipeline(okIngest, okQuery, &fakeAnswerer{answer: func(context.Context, string, string) (string, error) { return "", boom }}, "d", "m")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := tt.p.Generate(context.Background(), "q"); !errors.Is(err, boom) {
				t.Errorf("error = %v, want boom", err)
			}
		})
	}
}

func TestWithTopK(t *testing.T) {
	p := NewPipeline(nil, nil, nil, "d", "m", WithTopK(3), WithTopK(0))
	if p.topK != 3 {
		t.Errorf("topK = %d, want 3", p.topK)
	}
	if p.ModelID() != "m" {
		t.Errorf("ModelID = %q", p.ModelID())
	}
}
