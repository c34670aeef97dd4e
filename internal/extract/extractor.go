// Package extract turns knowledge files into page-addressed text.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Page is the text of one page of a source document. Number is 0-based.
// Formats without a page notion map slides, sheets, or form-feed sections to pages.
type Page struct {
	Number int
	Text   string
}

// Extractor extracts page text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Supported reports whether ext (with leading dot) has a dedicated extractor or is plain text.
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".docx", ".odt", ".rtf", ".xlsx", ".pptx", ".odp", ".ods", ".txt", ".md", ".rst":
		return true
	}
	return false
}

// Pages reads the file at path and returns its pages in order.
// ODT and RTF are read through lu4p/cat as a single page.
func (e *Extractor) Pages(path string) ([]Page, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".odt" || ext == ".rtf" {
		return catPages(path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return e.PagesBytes(content, ext)
}

// PagesBytes extracts pages from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf").
func (e *Extractor) PagesBytes(content []byte, ext string) ([]Page, error) {
	switch strings.ToLower(ext) {
	case ".pdf":
		return pdfPages(content)
	case ".docx":
		return docxPages(content)
	case ".odt", ".rtf":
		return catBytes(content, ext)
	case ".xlsx":
		return excelPages(content)
	case ".pptx":
		return pptxPages(content)
	case ".odp":
		return odpPages(content)
	case ".ods":
		return odsPages(content)
	default:
		return plainPages(content), nil
	}
}

// Text returns all page text joined with newlines.
func Text(pages []Page) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, "\n")
}
