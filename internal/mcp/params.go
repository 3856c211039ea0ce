package mcp

import "encoding/json"

// CallToolParams is the params object of a call_tool MCP request. The
// gateway accepts the canonical envelope {"name":..., "arguments": {...}};
// legacy shapes are reconciled after this type is decoded, by the
// dispatcher passing the raw params map through internal/normalizer.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`

	// SessionID optionally names a session created by create_session. It
	// sits alongside the argument envelope rather than inside it (spec
	// §4.3's caveat: a session id authorizes the call, it never changes
	// the wire credentials the normalizer/dispatcher build from).
	SessionID string `json:"session_id,omitempty"`
}

// ListToolsParams is the params object of list_tools.
type ListToolsParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// ListToolsResult is the result of list_tools.
type ListToolsResult struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// ListResourceTemplatesResult is the result of list_resource_templates.
type ListResourceTemplatesResult struct {
	ResourceTemplates []ResourceTemplate `json:"resourceTemplates"`
	NextCursor        string             `json:"nextCursor,omitempty"`
}

// ReadResourceParams is the params object of read_resource.
type ReadResourceParams struct {
	URI string `json:"uri"`
}

// SubscribeResourceParams is the params object of subscribe_resource /
// unsubscribe_resource.
type SubscribeResourceParams struct {
	URI string `json:"uri"`
}

// GetPromptParams is the params object of get_prompt.
type GetPromptParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// InitializeParams is the params object of initialize.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ClientInfo      ImplementationInfo `json:"clientInfo"`
}

// ResourceUpdatedParams is the params object of the
// notifications/resources/updated notification (spec §4.12).
type ResourceUpdatedParams struct {
	URI string `json:"uri"`
}
