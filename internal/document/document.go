// Package document holds the plain-text form of an input document and the
// normalization applied before analysis.
package document

import (
	"regexp"
	"strings"
)

// Format identifies the originating format of a document.
type Format string

const (
	FormatText     Format = "text"
	FormatPDF      Format = "pdf"
	FormatDocx     Format = "docx"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// Document is the raw textual content submitted for analysis. Created once
// per request and immutable thereafter.
type Document struct {
	Text   string
	Format Format
	// Pages is the page count for page-structured formats, 0 otherwise.
	Pages int
}

var (
	spaceRe   = regexp.MustCompile(`[ \t]+`)
	newlineRe = regexp.MustCompile(`\n+`)
	// Control characters except newline, which carries page and line boundaries.
	controlRe = regexp.MustCompile(`[\x00-\x09\x0B-\x1F\x7F-\x9F]`)
)

// Normalize collapses whitespace runs and strips control characters while
// preserving line boundaries. Idempotent.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = spaceRe.ReplaceAllString(s, " ")
	s = newlineRe.ReplaceAllString(s, "\n")
	s = controlRe.ReplaceAllString(s, "")
	return s
}

// EstimateTokens gives a rough token count for prompt sizing and logging.
// Roughly 0.75 tokens per English word; exact tokenization is not required.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	tokens := int(float64(words) * 1.33)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
