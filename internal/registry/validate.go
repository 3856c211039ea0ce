package registry

import (
	"fmt"

	"github.com/odoomcp/gateway/internal/gwerr"
	"github.com/odoomcp/gateway/internal/mcp"
)

// ValidateAgainstSchema checks arguments against schema's required-field
// list and, unless AdditionalProperties is set, rejects unknown top-level
// keys. This is a data-driven check off the tool's own reflected schema
// rather than a general JSON-Schema validator -- no such library appears
// anywhere in the corpus, and the teacher validates by strict-decoding
// into a typed Go struct (mcpservice/static_tools.go's
// json.Decoder.DisallowUnknownFields) rather than by interpreting a
// schema document at runtime, so this mirrors that idiom data-driven off
// the schema instead of a second hand-written struct per tool.
func ValidateAgainstSchema(schema mcp.ToolInputSchema, arguments map[string]any) error {
	var missing []string
	for _, req := range schema.Required {
		if _, ok := arguments[req]; !ok {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return gwerr.Validation(gwerr.ValidationSchema, fmt.Sprintf("missing required argument(s): %v", missing))
	}
	if !schema.AdditionalProperties {
		var unknown []string
		for k := range arguments {
			if _, ok := schema.Properties[k]; !ok {
				unknown = append(unknown, k)
			}
		}
		if len(unknown) > 0 {
			return gwerr.Validation(gwerr.ValidationSchema, fmt.Sprintf("unknown argument(s): %v", unknown))
		}
	}
	return nil
}
