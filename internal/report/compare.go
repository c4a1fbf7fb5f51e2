package report

import (
	"fmt"
	"strings"
	"time"
)

// Comparison carries the parsed comparison result for two documents.
// Fields is nil when the model response could not be parsed.
type Comparison struct {
	FilenameA   string
	FilenameB   string
	GeneratedAt time.Time
	Fields      map[string]any
}

const comparisonDisclaimer = "> **Disclaimer:** This is an automated, high-level analysis."

// RenderComparison produces the Markdown comparison report. Document A is
// always the first document submitted, so the table columns keep a stable
// mapping back to the inputs.
func RenderComparison(c Comparison) string {
	var b strings.Builder
	b.WriteString("## CONTRACT COMPARISON REPORT\n\n---\n\n")
	fmt.Fprintf(&b, "Comparing **%s** (Document A) against **%s** (Document B), %s.\n\n",
		c.FilenameA, c.FilenameB, c.GeneratedAt.Format("2006-01-02 15:04:05"))

	b.WriteString("### HIGH-LEVEL COMPARISON\n\n")
	b.WriteString("| Metric | Document A | Document B |\n")
	b.WriteString("|:---|:---|:---|\n")
	fmt.Fprintf(&b, "| **Est. Risk** | **%s** | **%s** |\n", sideRisk(c.Fields, "a"), sideRisk(c.Fields, "b"))
	fmt.Fprintf(&b, "| Est. Value | %s | %s |\n", sideValue(c.Fields, "a"), sideValue(c.Fields, "b"))

	b.WriteString("\n### KEY OBSERVATIONS\n\n")
	if c.Fields == nil {
		b.WriteString(notAvailableSection + "\n")
	} else if obs := stringSlice(c.Fields["observations"]); len(obs) == 0 {
		b.WriteString("* No observations returned.\n")
	} else {
		for _, o := range obs {
			fmt.Fprintf(&b, "* %s\n", o)
		}
	}

	b.WriteString("\n### RECOMMENDATION\n\n")
	if rec, _ := str(c.Fields["recommendation"]); rec != "" {
		fmt.Fprintf(&b, "1. %s\n", rec)
	} else {
		b.WriteString("1. The comparison response could not be parsed; no recommendation is available.\n")
	}
	b.WriteString("2. Review the differences above before committing to either document.\n")
	b.WriteString("3. Always consult with legal counsel for a full professional review.\n")

	b.WriteString("\n---\n\n" + comparisonDisclaimer + "\n")
	return b.String()
}

func side(fields map[string]any, key string) map[string]any {
	m, _ := fields[key].(map[string]any)
	return m
}

func sideRisk(fields map[string]any, key string) string {
	s := side(fields, key)
	score, ok := number(s["risk_score"])
	if !ok {
		return "not available"
	}
	level, _ := str(s["risk_level"])
	if level == "" {
		level = Band(score)
	}
	return fmt.Sprintf("%s/10 (%s)", formatScore(score), level)
}

func sideValue(fields map[string]any, key string) string {
	if v, _ := str(side(fields, key)["estimated_value"]); v != "" {
		return v
	}
	return "Not specified"
}
