package extract

import (
	"fmt"
	"regexp"
)

const odfContentPath = "content.xml"

var (
	odfTextP    = regexp.MustCompile(`<text:p[^>]*>([^<]*)</text:p>`)
	odfTextSpan = regexp.MustCompile(`<text:span[^>]*>([^<]*)</text:span>`)
	odfTextH    = regexp.MustCompile(`<text:h[^>]*>([^<]*)</text:h>`)

	// odpPageRe captures one <draw:page> (a slide) of an OpenDocument presentation.
	odpPageRe = regexp.MustCompile(`(?s)<draw:page[ >].*?</draw:page>`)
	// odsTableRe captures one <table:table> (a sheet) of an OpenDocument spreadsheet.
	odsTableRe = regexp.MustCompile(`(?s)<table:table[ >].*?</table:table>`)
)

func odfContent(content []byte, format string) (string, error) {
	zr, err := openZip(content, format)
	if err != nil {
		return "", err
	}
	data, err := readZipEntry(zr, odfContentPath)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", format, err)
	}
	if data == nil {
		return "", fmt.Errorf("extract %s: %s not found", format, odfContentPath)
	}
	return string(data), nil
}

// odfPages splits content.xml into sections matched by sectionRe. Documents
// without any section become a single page.
func odfPages(content []byte, format string, sectionRe *regexp.Regexp, text ...*regexp.Regexp) ([]Page, error) {
	s, err := odfContent(content, format)
	if err != nil {
		return nil, err
	}
	sections := sectionRe.FindAllString(s, -1)
	if len(sections) == 0 {
		return []Page{{Number: 0, Text: joinMatches(s, text...)}}, nil
	}
	pages := make([]Page, 0, len(sections))
	for i, section := range sections {
		pages = append(pages, Page{Number: i, Text: joinMatches(section, text...)})
	}
	return pages, nil
}

// odpPages returns one Page per slide.
func odpPages(content []byte) ([]Page, error) {
	return odfPages(content, "ODP", odpPageRe, odfTextH, odfTextP, odfTextSpan)
}

// odsPages returns one Page per sheet.
func odsPages(content []byte) ([]Page, error) {
	return odfPages(content, "ODS", odsTableRe, odfTextP, odfTextSpan)
}
