package prompt

import (
	"encoding/json"
	"strconv"
	"strings"
)

// NotAvailable is substituted for any referenced field whose producing
// stage returned no usable value. Downstream stages see the marker
// instead of failing.
const NotAvailable = "not available"

// Build renders a stage instruction by replacing each {{ref}} placeholder
// with its value. docs holds document-level references ("document", or
// "document_a"/"document_b" for comparison); results holds the parsed
// fields of earlier stages keyed by stage name. A nil entry in results
// marks a stage whose response was malformed, so every field read from it
// resolves to the NotAvailable marker.
func Build(stage Stage, docs map[string]string, results map[string]map[string]any) string {
	return placeholderRe.ReplaceAllStringFunc(stage.Instruction, func(m string) string {
		ref := placeholderRe.FindStringSubmatch(m)[1]
		if d, ok := docs[ref]; ok {
			return d
		}
		name, field, ok := strings.Cut(ref, ".")
		if !ok {
			return NotAvailable
		}
		fields := results[name]
		if fields == nil {
			return NotAvailable
		}
		v, ok := fields[field]
		if !ok {
			return NotAvailable
		}
		return renderValue(v)
	})
}

// renderValue formats a parsed JSON value for inclusion in a prompt.
// Scalars appear verbatim; arrays and objects appear as compact JSON so
// the model sees the structure the earlier stage produced.
func renderValue(v any) string {
	switch t := v.(type) {
	case nil:
		return NotAvailable
	case string:
		if strings.TrimSpace(t) == "" {
			return NotAvailable
		}
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return NotAvailable
		}
		return string(b)
	}
}
