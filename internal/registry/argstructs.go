package registry

// This file exists only to give invopop/jsonschema a Go shape to reflect
// for each tool's input schema (spec §4.8), matching the teacher's use of
// dedicated argument structs per tool in mcpserver/static_tools.go.

type echoArgs struct {
	Message string `json:"message" jsonschema:"required,description=Text to echo back"`
}

type createSessionArgs struct {
	Username string `json:"username" jsonschema:"required"`
	APIKey   string `json:"api_key" jsonschema:"required,description=Odoo API key or password"`
}

type destroySessionArgs struct {
	SessionID string `json:"session_id" jsonschema:"required"`
}

type schemaVersionArgs struct{}

type schemaModelsArgs struct {
	WithAccess *bool `json:"with_access,omitempty" jsonschema:"description=Restrict to models the session can access (default true)"`
}

type schemaFieldsArgs struct {
	Model string `json:"model" jsonschema:"required"`
}

type domainValidateArgs struct {
	Model      string `json:"model" jsonschema:"required"`
	DomainJSON any    `json:"domain_json" jsonschema:"required"`
}

type searchReadArgs struct {
	Model      string `json:"model" jsonschema:"required"`
	DomainJSON any    `json:"domain_json,omitempty"`
	Fields     []string `json:"fields,omitempty"`
	Limit      *int   `json:"limit,omitempty" jsonschema:"maximum=200"`
	Offset     *int   `json:"offset,omitempty" jsonschema:"minimum=0"`
	Order      string `json:"order,omitempty"`
}

type readArgs struct {
	Model      string   `json:"model" jsonschema:"required"`
	RecordIDs  []int64  `json:"record_ids" jsonschema:"required"`
	Fields     []string `json:"fields,omitempty"`
}

type createArgs struct {
	Model       string         `json:"model" jsonschema:"required"`
	Values      map[string]any `json:"values" jsonschema:"required"`
	OperationID string         `json:"operation_id,omitempty"`
}

type writeArgs struct {
	Model       string         `json:"model" jsonschema:"required"`
	RecordIDs   []int64        `json:"record_ids" jsonschema:"required"`
	Values      map[string]any `json:"values" jsonschema:"required"`
	OperationID string         `json:"operation_id,omitempty"`
}

type unlinkArgs struct {
	Model       string  `json:"model" jsonschema:"required"`
	RecordIDs   []int64 `json:"record_ids" jsonschema:"required"`
	OperationID string  `json:"operation_id,omitempty"`
}

type nameSearchArgs struct {
	Model    string `json:"model" jsonschema:"required"`
	Name     string `json:"name" jsonschema:"required"`
	Operator string `json:"operator,omitempty" jsonschema:"description=Defaults to ilike"`
	Limit    *int   `json:"limit,omitempty"`
}

type picklistsArgs struct {
	Model string `json:"model" jsonschema:"required"`
	Field string `json:"field" jsonschema:"required"`
	Limit *int   `json:"limit,omitempty"`
}

type nextStepsArgs struct {
	Model    string `json:"model" jsonschema:"required"`
	RecordID int64  `json:"record_id" jsonschema:"required"`
}

type actionsCallArgs struct {
	Model       string         `json:"model" jsonschema:"required"`
	RecordID    int64          `json:"record_id" jsonschema:"required"`
	Method      string         `json:"method" jsonschema:"required"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	OperationID string         `json:"operation_id,omitempty"`
}
