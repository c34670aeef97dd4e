package sampling

import (
	"errors"
	"testing"

	"github.com/hyperjump/ragprobe/internal/errdefs"
)

func TestPick_Reproducible(t *testing.T) {
	ids := []string{"doc: a page:0:0", "doc: a page:0:1", "doc: b page:0:0", "doc: c page:3:2"}
	shuffled := []string{ids[2], ids[0], ids[3], ids[1]}
	for seed := int64(0); seed < 20; seed++ {
		a, err := Pick(ids, seed)
		if err != nil {
			t.Fatal(err)
		}
		b, _ := Pick(shuffled, seed)
		if a != b {
			t.Errorf("seed %d: Pick depends on input order: %q vs %q", seed, a, b)
		}
	}
}

func TestPick_CoversInput(t *testing.T) {
	ids := []string{"a", "b", "c"}
	seen := map[string]bool{}
	for seed := int64(0); seed < 100; seed++ {
		id, _ := Pick(ids, seed)
		seen[id] = true
	}
	if len(seen) != len(ids) {
		t.Errorf("100 seeds picked only %v", seen)
	}
}

func TestSample(t *testing.T) {
	ids := []string{"e", "d", "c", "b", "a", "a"}
	got, err := Sample(ids, 3, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	seen := map[string]bool{}
	for _, id := range got {
		if seen[id] {
			t.Errorf("duplicate %q in sample %v", id, got)
		}
		seen[id] = true
	}
	again, _ := Sample(ids, 3, 7)
	for i := range got {
		if got[i] != again[i] {
			t.Errorf("sample not reproducible: %v vs %v", got, again)
		}
	}
	all, _ := Sample(ids, 50, 1)
	if len(all) != 5 {
		t.Errorf("oversized sample = %v, want the 5 distinct ids", all)
	}
	if ids[0] != "e" {
		t.Error("input slice must not be reordered")
	}
}

func TestSample_Errors(t *testing.T) {
	if _, err := Pick(nil, 1); !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("Pick(nil) error = %v, want ErrNotFound", err)
	}
	if _, err := Sample([]string{"a"}, 0, 1); !errors.Is(err, errdefs.ErrInvalidInput) {
		t.Errorf("Sample(n=0) error = %v, want ErrInvalidInput", err)
	}
}
