package indexer

import (
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/ragprobe/internal/extract"
	"github.com/hyperjump/ragprobe/internal/models"
)

// defaultSeparators are tried in order: paragraphs, lines, words, characters.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter recursively splits text into chunks of at most size characters,
// carrying up to overlap characters of the previous chunk into the next.
// Separators are kept at the start of the piece that follows them.
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

// NewSplitter creates a splitter with the given size and overlap (in characters).
func NewSplitter(size, overlap int) *Splitter {
	return &Splitter{size: size, overlap: overlap, separators: defaultSeparators}
}

// SplitPages splits every page into raw chunks tagged with source and page number.
// Chunks are returned in page order.
func (s *Splitter) SplitPages(source string, pages []extract.Page) []models.RawChunk {
	var out []models.RawChunk
	for _, p := range pages {
		for _, text := range s.SplitText(p.Text) {
			out = append(out, models.RawChunk{Source: source, Page: p.Number, Content: text})
		}
	}
	return out
}

// SplitText splits text into chunks. Whitespace-only text yields no chunks.
func (s *Splitter) SplitText(text string) []string {
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			separator = ""
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var final, good []string
	for _, piece := range splitKeepSeparator(text, separator) {
		if runeLen(piece) < s.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good)...)
	}
	return final
}

// merge packs pieces into chunks no longer than size, sliding a window that
// keeps at most overlap characters from the end of the previous chunk.
func (s *Splitter) merge(pieces []string) []string {
	var docs, current []string
	total := 0
	for _, p := range pieces {
		n := runeLen(p)
		if total+n > s.size && len(current) > 0 {
			if doc := joinTrimmed(current); doc != "" {
				docs = append(docs, doc)
			}
			for total > s.overlap || (total+n > s.size && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}
	if doc := joinTrimmed(current); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinTrimmed(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
