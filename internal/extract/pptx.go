package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

// pptxSlideRe matches slide parts and captures the 1-based slide number.
var pptxSlideRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// atTag matches <a:t>text</a:t> with any attributes.
var atTag = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)

// pptxPages returns one Page per slide, ordered by slide number.
func pptxPages(content []byte) ([]Page, error) {
	zr, err := openZip(content, "PPTX")
	if err != nil {
		return nil, err
	}
	type slide struct {
		n    int
		name string
	}
	var slides []slide
	for _, f := range zr.File {
		m := pptxSlideRe.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		slides = append(slides, slide{n: n, name: f.Name})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	pages := make([]Page, 0, len(slides))
	for _, s := range slides {
		data, err := readZipEntry(zr, s.name)
		if err != nil {
			return nil, fmt.Errorf("extract PPTX: %w", err)
		}
		pages = append(pages, Page{Number: s.n - 1, Text: joinMatches(string(data), atTag)})
	}
	return pages, nil
}
