// Package cli provides output helpers for the ragprobe command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/ragprobe/internal/errdefs"
	"github.com/hyperjump/ragprobe/internal/experiment"
	"github.com/hyperjump/ragprobe/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown output format %q (use text or json)", errdefs.ErrInvalidInput, s)
	}
}

// WriteSummary writes the experiment summary to w in the given format.
// Text output is the "Test Results Summary" grid table.
func WriteSummary(w io.Writer, s *experiment.Summary, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, s)
	}
	fmt.Fprintln(w, "\nTest Results Summary")
	WriteGrid(w, experiment.Headers, s.Rows())
	return nil
}

// WriteTestCase writes a stored question/answer pair.
func WriteTestCase(w io.Writer, tc *models.TestCase, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, tc)
	}
	WriteGrid(w, []string{"Field", "Value"}, [][]string{
		{"doc_id", tc.DocID},
		{"question", tc.Question},
		{"answer", tc.Answer},
	})
	return nil
}

// WriteList writes one item per line, or a JSON array.
func WriteList(w io.Writer, items []string, format OutputFormat) error {
	if format == OutputJSON {
		if items == nil {
			items = []string{}
		}
		return WriteJSON(w, items)
	}
	for _, item := range items {
		fmt.Fprintln(w, item)
	}
	return nil
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteGrid writes a grid table:
//
//	+--------+-------+
//	| Metric | Value |
//	+========+=======+
//	| a      | 1     |
//	+--------+-------+
func WriteGrid(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if n := utf8.RuneCountInString(row[i]); n > widths[i] {
				widths[i] = n
			}
		}
	}
	rule := func(fill string) string {
		var b strings.Builder
		b.WriteString("+")
		for _, n := range widths {
			b.WriteString(strings.Repeat(fill, n+2))
			b.WriteString("+")
		}
		return b.String()
	}
	line := func(cells []string) string {
		var b strings.Builder
		b.WriteString("|")
		for i, n := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			b.WriteString(" ")
			b.WriteString(cell)
			b.WriteString(strings.Repeat(" ", n-utf8.RuneCountInString(cell)))
			b.WriteString(" |")
		}
		return b.String()
	}
	fmt.Fprintln(w, rule("-"))
	fmt.Fprintln(w, line(headers))
	fmt.Fprintln(w, rule("="))
	for _, row := range rows {
		fmt.Fprintln(w, line(row))
		fmt.Fprintln(w, rule("-"))
	}
}
