// Package report renders analysis results into Markdown and HTML. The
// renderer is deterministic: it reads only the parsed stage results and
// never invents content, so a malformed stage shows up as an explicit
// "not available" section instead of fabricated text.
package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Analysis carries everything the renderer needs for a single-document
// report. Results is keyed by stage name; a missing or nil entry marks a
// stage whose response could not be parsed.
type Analysis struct {
	Filename    string
	Pages       int
	GeneratedAt time.Time
	Results     map[string]map[string]any
}

const notAvailableSection = "_Not available. The model response for this section could not be parsed._"

const disclaimer = "> **Disclaimer:** This is an automated analysis. Please consult with legal counsel for professional advice before making any decisions."

// Render produces the full Markdown analysis report.
func Render(a Analysis) string {
	parties := a.Results["parties"]
	financials := a.Results["financials"]
	risks := a.Results["risks"]

	score, scoreOK := number(risks["risk_score"])
	level, _ := str(risks["risk_level"])
	if level == "" && scoreOK {
		level = Band(score)
	}

	lowConfidence := 0
	for _, section := range []map[string]any{parties, financials, risks} {
		if section == nil {
			lowConfidence++
		}
	}

	var b strings.Builder
	b.WriteString("## LEGAL DOCUMENT ANALYSIS REPORT\n\n---\n\n")

	b.WriteString("### EXECUTIVE SUMMARY\n\n")
	if a.Filename != "" {
		fmt.Fprintf(&b, "* **Document:** %s\n", a.Filename)
	}
	if a.Pages > 1 {
		fmt.Fprintf(&b, "* **Pages:** %d\n", a.Pages)
	}
	if scoreOK {
		fmt.Fprintf(&b, "* **Risk Level:** %s\n", level)
		fmt.Fprintf(&b, "* **Risk Score:** %s/10\n", formatScore(score))
	} else {
		b.WriteString("* **Risk Level:** not available\n")
	}
	fmt.Fprintf(&b, "* **Analysis Date:** %s\n", a.GeneratedAt.Format("2006-01-02 15:04:05"))
	if lowConfidence > 0 {
		fmt.Fprintf(&b, "* **Low-confidence sections:** %d\n", lowConfidence)
	}

	b.WriteString("\n### KEY PARTIES\n\n")
	switch names := stringSlice(parties["parties"]); {
	case parties == nil:
		b.WriteString(notAvailableSection + "\n")
	case len(names) == 0:
		b.WriteString("* No parties identified.\n")
	default:
		b.WriteString("The primary parties to this agreement are:\n\n")
		for _, name := range names {
			fmt.Fprintf(&b, "* **%s**\n", name)
		}
	}

	b.WriteString("\n### FINANCIAL TERMS\n\n")
	switch terms := stringSlice(financials["financial_terms"]); {
	case financials == nil:
		b.WriteString(notAvailableSection + "\n")
	case len(terms) == 0:
		b.WriteString("* No financial terms identified.\n")
	default:
		for _, term := range terms {
			fmt.Fprintf(&b, "* %s\n", term)
		}
	}

	b.WriteString("\n### IDENTIFIED RISKS\n\n")
	switch items := objSlice(risks["risks"]); {
	case risks == nil:
		b.WriteString(notAvailableSection + "\n")
	case len(items) == 0:
		b.WriteString("No significant risks identified.\n")
	default:
		for i, item := range items {
			desc, _ := str(item["description"])
			severity, _ := str(item["severity"])
			if severity == "" {
				severity = "Unknown"
			}
			fmt.Fprintf(&b, "%d. **%s** (%s severity)\n", i+1, desc, severity)
		}
	}

	b.WriteString("\n### RECOMMENDATIONS\n\n")
	if scoreOK {
		fmt.Fprintf(&b, "1. Based on the risk score of **%s/10**, this document is considered **%s risk**.\n", formatScore(score), level)
	} else {
		b.WriteString("1. The risk assessment was not available for this document; treat it with caution.\n")
	}
	b.WriteString("2. Review the identified risks, especially any missing critical clauses.\n")
	b.WriteString("3. Always have legal counsel review contracts before execution.\n")

	b.WriteString("\n---\n\n" + disclaimer + "\n")
	return b.String()
}

// Band maps a 0-10 risk score onto the level names used throughout the
// reports: 0-3 Low, 4-6 Medium, 7-10 High.
func Band(score float64) string {
	switch {
	case score <= 3:
		return "Low"
	case score <= 6:
		return "Medium"
	default:
		return "High"
	}
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

// number reads a numeric field from a parsed JSON object. Models
// occasionally return numbers as strings, so those are accepted too.
func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func str(v any) (string, bool) {
	s, ok := v.(string)
	return strings.TrimSpace(s), ok
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := str(item); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func objSlice(v any) []map[string]any {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
