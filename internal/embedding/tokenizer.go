package embedding

import (
	"hash/fnv"
	"strings"
)

// BERT special token IDs.
const (
	clsToken  = 101
	sepToken  = 102
	vocabSize = 30000
)

// Tokenizer produces token IDs for BERT-style models (input_ids, attention_mask, token_type_ids).
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// HashTokenizer maps lower-cased words to hashed vocabulary IDs. It does not
// reproduce WordPiece; it gives the local model a stable input without a vocab file.
type HashTokenizer struct{}

// Tokenize produces [CLS] words... [SEP], padded to maxTokens.
func (t *HashTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = clsToken
	attentionMask[0] = 1
	pos := 1
	for _, word := range strings.Fields(strings.ToLower(text)) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = tokenID(word)
		attentionMask[pos] = 1
		pos++
	}
	if pos < maxTokens {
		inputIDs[pos] = sepToken
		attentionMask[pos] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// tokenID hashes word into the range above the special tokens.
func tokenID(word string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(word))
	return int64(h.Sum32()%(vocabSize-1000)) + 1000
}
