package parser

import (
	"bufio"
	"io"
	"strings"

	"lexiscan/internal/document"
)

// TextParser handles plain text files.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*document.Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, &ExtractionError{Format: string(document.FormatText), Reason: "read input", Err: err}
	}

	return newDocument(document.FormatText, strings.Join(lines, "\n"), 0)
}
