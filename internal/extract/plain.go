package extract

import (
	"strings"
	"unicode/utf8"
)

// plainPages validates content as UTF-8 and splits it into pages on form feeds.
// Invalid UTF-8 sequences are replaced with the replacement character.
func plainPages(content []byte) []Page {
	s := string(content)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\ufffd")
	}
	sections := strings.Split(s, "\f")
	pages := make([]Page, 0, len(sections))
	for i, text := range sections {
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages
}
