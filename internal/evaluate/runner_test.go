package evaluate

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperjump/ragprobe/internal/errdefs"
	"github.com/hyperjump/ragprobe/internal/models"
)

type fakePipeline struct {
	generate func(ctx context.Context, query string) (string, []string, error)
}

func (f *fakePipeline) Generate(ctx context.Context, query string) (string, []string, error) {
	return f.generate(ctx, query)
}

func returning(sources ...string) *fakePipeline {
	return &fakePipeline{generate: func(context.Context, string) (string, []string, error) {
		return "some answer", sources, nil
	}}
}

func TestRun(t *testing.T) {
	tc := &models.TestCase{DocID: "doc: A.pdf page:1:0", Question: "Is A true?", Answer: "True"}
	tests := []struct {
		name        string
		sources     []string
		wantPassed  bool
		wantSources int
	}{
		{"hit", []string{"doc: A.pdf page:1:0", "doc: B.pdf page:2:1"}, true, 2},
		{"miss", []string{"doc: B.pdf page:2:1"}, false, 1},
		{"duplicates", []string{"doc: A.pdf page:1:0", "doc: A.pdf page:1:0"}, true, 1},
		{"null entries", []string{"", "doc: A.pdf page:1:0", ""}, true, 1},
		{"only nulls", []string{"", ""}, false, 0},
		{"no hits", nil, false, 0},
	}
	r := NewRunner()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Run(context.Background(), returning(tt.sources...), tc)
			if err != nil {
				t.Fatal(err)
			}
			if res.Passed != tt.wantPassed {
				t.Errorf("Passed = %v, want %v", res.Passed, tt.wantPassed)
			}
			if len(res.SourcesReturned) != tt.wantSources {
				t.Errorf("SourcesReturned = %v, want %d entries", res.SourcesReturned, tt.wantSources)
			}
			if _, ok := res.SourcesReturned[""]; ok {
				t.Error("empty source must be excluded")
			}
		})
	}
}

func TestRun_QuestionIsSentToPipeline(t *testing.T) {
	var got string
	p := &fakePipeline{generate: func(_ context.Context, q string) (string, []string, error) {
		got = q
		return "", nil, nil
	}}
	_, _ = NewRunner().Run(context.Background(), p, &models.TestCase{DocID: "d", Question: "Q?"})
	if got != "Q?" {
		t.Errorf("pipeline query = %q, want Q?", got)
	}
}

func TestRun_PipelineFailure(t *testing.T) {
	p := &fakePipeline{generate: func(context.Context, string) (string, []string, error) {
		return "", nil, errors.New("retrieval backend down")
	}}
	res, err := NewRunner().Run(context.Background(), p, &models.TestCase{DocID: "d", Question: "q"})
	if !errors.Is(err, errdefs.ErrExternalService) {
		t.Errorf("error = %v, want ErrExternalService", err)
	}
	if res.Passed {
		t.Error("failed run must not pass")
	}
}

func TestScore_EmptyDocIDNeverPasses(t *testing.T) {
	if Score("", []string{"", "x"}).Passed {
		t.Error("an empty doc_id must not match")
	}
}
