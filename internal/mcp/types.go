// Package mcp contains the MCP protocol wire types the gateway needs: tool
// and resource descriptors, call envelopes, and the JSON-Schema-shaped
// property type used to describe tool inputs. It mirrors the shape (not the
// full surface) of the teacher's mcp package -- this gateway does not
// implement sampling, roots, or elicitation, so those types are omitted.
package mcp

// LatestProtocolVersion is the MCP protocol date this gateway advertises
// during initialize.
const LatestProtocolVersion = "2025-06-18"

// ImplementationInfo identifies a client or server implementation.
type ImplementationInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerCapabilities is advertised during initialize.
type ServerCapabilities struct {
	Tools     *ToolsCapability     `json:"tools,omitempty"`
	Resources *ResourcesCapability `json:"resources,omitempty"`
	Prompts   *PromptsCapability   `json:"prompts,omitempty"`
}

type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// InitializeResult is returned from the "initialize" MCP method.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ImplementationInfo `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// SchemaProperty is a simplified JSON-Schema node, mirroring the teacher's
// mcp.SchemaProperty, used both for reflected (invopop/jsonschema) and
// hand-built tool input schemas.
type SchemaProperty struct {
	Type        string                    `json:"type,omitempty"`
	Description string                    `json:"description,omitempty"`
	Items       *SchemaProperty           `json:"items,omitempty"`
	Properties  map[string]SchemaProperty `json:"properties,omitempty"`
	Required    []string                  `json:"required,omitempty"`
	Enum        []any                     `json:"enum,omitempty"`
	Default     any                       `json:"default,omitempty"`
	Minimum     *float64                  `json:"minimum,omitempty"`
	Maximum     *float64                  `json:"maximum,omitempty"`
}

// ToolInputSchema is the JSON-Schema object every tool declares for its
// arguments (spec §3, Tool entity: "schema MUST declare all required
// fields").
type ToolInputSchema struct {
	Type                 string                    `json:"type"`
	Properties           map[string]SchemaProperty `json:"properties,omitempty"`
	Required             []string                  `json:"required,omitempty"`
	AdditionalProperties bool                      `json:"additionalProperties"`
}

// Tool is a named, schema-validated operation exposed to MCP clients.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema ToolInputSchema `json:"inputSchema"`
}

// ContentBlock is a single unit of tool-result content. The gateway only
// ever emits text/JSON content blocks.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallToolResult is the result of a call_tool MCP method.
type CallToolResult struct {
	Content           []ContentBlock `json:"content"`
	StructuredContent any            `json:"structuredContent,omitempty"`
	IsError           bool           `json:"isError,omitempty"`
}

// NewToolResult wraps a Go value as both structured content and a
// JSON-rendered text block, matching what MCP clients that only read
// Content[0].Text still expect to see.
func NewToolResult(v any) *CallToolResult {
	return &CallToolResult{
		Content:           []ContentBlock{{Type: "text", Text: renderJSON(v)}},
		StructuredContent: v,
	}
}

// Resource describes a concrete addressable object.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceTemplate describes a URI template and the operations it supports
// (spec §3, ResourceTemplate entity).
type ResourceTemplate struct {
	URITemplate string   `json:"uriTemplate"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	MimeType    string   `json:"mimeType,omitempty"`
	Operations  []string `json:"-"`
}

// ResourceContents is the payload returned from read_resource.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// ReadResourceResult wraps one or more ResourceContents.
type ReadResourceResult struct {
	Contents []ResourceContents `json:"contents"`
}

// ListPromptsResult is the result of list_prompts.
type ListPromptsResult struct {
	Prompts    []Prompt `json:"prompts"`
	NextCursor string   `json:"nextCursor,omitempty"`
}

// Prompt is a named, reusable prompt template (spec §6 list_prompts/get_prompt).
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// PromptMessage is a single turn returned from get_prompt.
type PromptMessage struct {
	Role    string       `json:"role"`
	Content ContentBlock `json:"content"`
}

// GetPromptResult is the result of get_prompt.
type GetPromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}
