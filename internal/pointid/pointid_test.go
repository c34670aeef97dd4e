package pointid

import (
	"testing"

	"github.com/google/uuid"
)

func TestFor_deterministic(t *testing.T) {
	a := For("text-embedding-3-large", "doc: f.pdf page:0:0")
	b := For("text-embedding-3-large", "doc: f.pdf page:0:0")
	if a != b {
		t.Errorf("same input should give same ID: %q vs %q", a, b)
	}
	u, err := uuid.Parse(a)
	if err != nil {
		t.Fatalf("not a UUID: %q", a)
	}
	if u.Version() != 5 {
		t.Errorf("version = %d, want 5", u.Version())
	}
}

func TestFor_distinct(t *testing.T) {
	tests := []struct {
		name           string
		model1, chunk1 string
		model2, chunk2 string
	}{
		{"different chunk", "m", "doc: a.pdf page:0:0", "m", "doc: a.pdf page:0:1"},
		{"different model", "m1", "doc: a.pdf page:0:0", "m2", "doc: a.pdf page:0:0"},
		{"no concatenation clash", "ab", "c", "a", "bc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if For(tt.model1, tt.chunk1) == For(tt.model2, tt.chunk2) {
				t.Error("expected different IDs")
			}
		})
	}
}
