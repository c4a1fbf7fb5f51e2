// Package parser turns document bytes in supported formats into plain text
// for analysis. Parsers preserve reading order and fail with an
// ExtractionError rather than returning empty content.
package parser

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"lexiscan/internal/document"
)

// Parser converts raw document bytes into a plain-text Document.
type Parser interface {
	Parse(r io.Reader, filename string) (*document.Document, error)
}

// ExtractionError reports input that is not parseable as a supported
// document format or that yields no extractable text.
type ExtractionError struct {
	Format string
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %s: %v", e.Format, e.Reason, e.Err)
	}
	return fmt.Sprintf("extract %s: %s", e.Format, e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".text":     true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt", ".text":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, &ExtractionError{Format: strings.TrimPrefix(ext, "."), Reason: "unsupported file extension"}
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// Options tune format-specific parsing behavior.
type Options struct {
	// PDFFallbackPdftotext enables shelling out to pdftotext when the
	// native PDF library cannot read a file.
	PDFFallbackPdftotext bool
}

// ExtractFile picks a parser by filename and runs it over data.
func ExtractFile(filename string, data []byte, opts Options) (*document.Document, error) {
	p, err := ForFile(filename)
	if err != nil {
		return nil, err
	}
	if pp, ok := p.(*PDFParser); ok {
		pp.FallbackPdftotext = opts.PDFFallbackPdftotext
	}
	return p.Parse(bytes.NewReader(data), filename)
}

// newDocument wraps extracted text, rejecting empty extractions so that a
// parse never succeeds with nothing to analyze.
func newDocument(format document.Format, text string, pages int) (*document.Document, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &ExtractionError{Format: string(format), Reason: "no extractable text"}
	}
	return &document.Document{Text: text, Format: format, Pages: pages}, nil
}
