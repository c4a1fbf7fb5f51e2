package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// stripCodeBlock removes a surrounding Markdown code fence, if present.
func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

// scanJSONObject returns the first balanced top-level JSON object embedded
// in s, honoring string literals and escapes.
func scanJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// decodeResult runs the decoding ladder over a raw model response: strict
// decode, then fence stripping, then an embedded-object scan. Whatever
// decodes is validated against the declared shape. If nothing conforms the
// result is marked malformed and carries the raw text; it is never an error.
func decodeResult(raw string, shape *Shape) *Result {
	text := strings.TrimSpace(raw)
	if shape == nil {
		return &Result{Raw: text}
	}

	candidates := []string{text}
	if stripped := stripCodeBlock(text); stripped != text {
		candidates = append(candidates, stripped)
	}
	if embedded, ok := scanJSONObject(text); ok && embedded != text {
		candidates = append(candidates, embedded)
	}

	reason := "response is not a JSON object"
	for _, cand := range candidates {
		var fields map[string]any
		if err := json.Unmarshal([]byte(cand), &fields); err != nil {
			continue
		}
		if err := ValidateAgainstSchema(shape.Schema, []byte(cand)); err != nil {
			reason = err.Error()
			continue
		}
		return &Result{Fields: fields, Raw: text}
	}

	return &Result{Raw: text, Malformed: true, Reason: reason}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
