package embedding

import "testing"

func TestHashTokenizer_Tokenize(t *testing.T) {
	tok := &HashTokenizer{}
	ids, attn, types := tok.Tokenize("Hello world", 10)
	if len(ids) != 10 || len(attn) != 10 || len(types) != 10 {
		t.Fatalf("lengths = %d/%d/%d, want 10", len(ids), len(attn), len(types))
	}
	if ids[0] != clsToken || ids[3] != sepToken {
		t.Errorf("expected [CLS] w w [SEP], got %v", ids[:4])
	}
	for i, want := range []int64{1, 1, 1, 1, 0} {
		if attn[i] != want {
			t.Errorf("attention[%d] = %d, want %d", i, attn[i], want)
		}
	}
	again, _, _ := tok.Tokenize("hello WORLD", 10)
	if again[1] != ids[1] || again[2] != ids[2] {
		t.Error("tokenization should be case-insensitive and deterministic")
	}
}

func TestHashTokenizer_truncates(t *testing.T) {
	ids, attn, _ := (&HashTokenizer{}).Tokenize("a b c d e f g h", 4)
	if len(ids) != 4 {
		t.Fatalf("len = %d", len(ids))
	}
	if ids[3] != sepToken || attn[3] != 1 {
		t.Errorf("last slot should be [SEP], got %v", ids)
	}
}

func TestTokenID_range(t *testing.T) {
	for _, w := range []string{"a", "retrieval", "chunk", "ñandú"} {
		id := tokenID(w)
		if id < 1000 || id >= vocabSize {
			t.Errorf("tokenID(%q) = %d out of range", w, id)
		}
	}
}
