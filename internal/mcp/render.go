package mcp

import "encoding/json"

// renderJSON best-effort renders v as a compact JSON string for the text
// content block accompanying structuredContent.
func renderJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
