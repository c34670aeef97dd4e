package extract

import (
	"fmt"
	"os"

	"github.com/lu4p/cat"
)

// catPages reads ODT or RTF through lu4p/cat. These formats carry no page
// boundaries, so the whole document is page 0.
func catPages(path string) ([]Page, error) {
	text, err := cat.File(path)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}
	return []Page{{Number: 0, Text: text}}, nil
}

func catBytes(content []byte, ext string) ([]Page, error) {
	f, err := os.CreateTemp("", "ragprobe-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	return catPages(f.Name())
}
