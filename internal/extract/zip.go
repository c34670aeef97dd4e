package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// readZipEntry returns the bytes of the entry called name, or nil when absent.
func readZipEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		var buf bytes.Buffer
		_, err = buf.ReadFrom(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		return buf.Bytes(), nil
	}
	return nil, nil
}

func openZip(content []byte, format string) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract %s: not a zip: %w", format, err)
	}
	return zr, nil
}

// joinMatches joins the first capture group of every match of the patterns in s.
func joinMatches(s string, patterns ...*regexp.Regexp) string {
	var b strings.Builder
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(s, -1) {
			text := strings.TrimSpace(m[1])
			if text == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(text)
		}
	}
	return b.String()
}
