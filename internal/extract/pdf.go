package extract

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// pdfPages returns one Page per PDF page. Page numbers are 0-based; null pages are skipped
// without shifting the numbering of later pages.
func pdfPages(content []byte) ([]Page, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	numPages := r.NumPage()
	pages := make([]Page, 0, numPages)
	for i := 0; i < numPages; i++ {
		page := r.Page(i + 1)
		if page.V.IsNull() {
			continue
		}
		text, err := plainText(page)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i+1, err)
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, nil
}

// plainText converts parser panics on malformed content streams into errors.
func plainText(page pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed page: %v", r)
		}
	}()
	return page.GetPlainText(nil)
}
