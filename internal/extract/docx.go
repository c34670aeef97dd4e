package extract

import (
	"archive/zip"
	"fmt"
	"regexp"
	"strings"
)

const (
	docxDocumentXMLPath = "word/document.xml"
	contentTypesPath    = "[Content_Types].xml"
	docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

// wtTag matches <w:t>text</w:t> with any attributes.
var wtTag = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

var (
	partNameRe  = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`)
	partNameRe2 = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`)
)

// docxMainPart resolves the main document part from [Content_Types].xml,
// falling back to word/document.xml.
func docxMainPart(zr *zip.Reader) string {
	types, err := readZipEntry(zr, contentTypesPath)
	if err != nil || types == nil {
		return docxDocumentXMLPath
	}
	for _, re := range []*regexp.Regexp{partNameRe, partNameRe2} {
		if m := re.FindSubmatch(types); len(m) > 1 {
			return strings.TrimPrefix(string(m[1]), "/")
		}
	}
	return docxDocumentXMLPath
}

// docxPages extracts every <w:t> run. Word layout pagination is not stored in
// the file, so the document is returned as page 0.
func docxPages(content []byte) ([]Page, error) {
	zr, err := openZip(content, "DOCX")
	if err != nil {
		return nil, err
	}
	part := docxMainPart(zr)
	docXML, err := readZipEntry(zr, part)
	if err != nil {
		return nil, fmt.Errorf("extract DOCX: %w", err)
	}
	if docXML == nil {
		return nil, fmt.Errorf("extract DOCX: %s not found", part)
	}
	return []Page{{Number: 0, Text: joinMatches(string(docXML), wtTag)}}, nil
}
