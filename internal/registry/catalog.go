package registry

import "github.com/odoomcp/gateway/internal/mcp"

func tool[A any](name, description string) mcp.Tool {
	return mcp.Tool{Name: name, Description: description, InputSchema: reflectInputSchema[A](false)}
}

func passthroughTool(name, description string) mcp.Tool {
	return mcp.Tool{Name: name, Description: description, InputSchema: rawObjectSchema()}
}

// buildCatalog returns the full static tool table: spec.md §6's catalog
// plus the SPEC_FULL.md §6 legacy passthrough additions carried over from
// original_source/odoo_mcp/tools/orm_tools.go's generic dispatch path.
func buildCatalog() []ToolSpec {
	return []ToolSpec{
		{Descriptor: tool[echoArgs]("echo", "Echo a message back, for connectivity checks"), Category: CategoryLocal},
		{Descriptor: tool[createSessionArgs]("create_session", "Authenticate against Odoo and open a session"), Category: CategoryLocal},
		{Descriptor: tool[destroySessionArgs]("destroy_session", "End an open session"), Category: CategoryLocal},

		{Descriptor: tool[schemaVersionArgs]("odoo.schema.version", "Return the current schema version tag"), Category: CategoryLocal},
		{Descriptor: tool[schemaModelsArgs]("odoo.schema.models", "List models visible to the session"), Category: CategoryOdooAction, Method: "get_models"},
		{Descriptor: tool[schemaFieldsArgs]("odoo.schema.fields", "Describe a model's fields"), Category: CategoryOdooRead, Method: "fields_get"},
		{Descriptor: tool[domainValidateArgs]("odoo.domain.validate", "Validate and compile a domain expression"), Category: CategoryLocal},

		{Descriptor: tool[searchReadArgs]("odoo.search_read", "Search and read records in one call"), Category: CategoryOdooRead, Method: "search_read"},
		{Descriptor: tool[readArgs]("odoo.read", "Read records by id"), Category: CategoryOdooRead, Method: "read"},
		{Descriptor: tool[createArgs]("odoo.create", "Create a record"), Category: CategoryOdooWrite, Method: "create", RequiresOperationID: true},
		{Descriptor: tool[writeArgs]("odoo.write", "Update records"), Category: CategoryOdooWrite, Method: "write", RequiresOperationID: true},
		{Descriptor: tool[unlinkArgs]("odoo.unlink", "Delete records"), Category: CategoryOdooWrite, Method: "unlink", RequiresOperationID: true},
		{Descriptor: tool[nameSearchArgs]("odoo.name_search", "Search records by display name"), Category: CategoryOdooRead, Method: "name_search"},
		{Descriptor: tool[picklistsArgs]("odoo.picklists", "List the allowed values of a selection/many2one field"), Category: CategoryOdooRead, Method: "name_search"},
		{Descriptor: tool[nextStepsArgs]("odoo.actions.next_steps", "Describe a record's workflow state and available actions"), Category: CategoryOdooAction, Method: "next_steps"},
		{Descriptor: tool[actionsCallArgs]("odoo.actions.call", "Invoke an action method on a record"), Category: CategoryOdooAction, RequiresOperationID: true},

		{Descriptor: passthroughTool("odoo.call_kw", "Generic execute_kw passthrough (model, method, args, kwargs verbatim)"), Category: CategoryPassthrough},
		{Descriptor: passthroughTool("odoo_execute_kw", "Legacy alias of odoo.call_kw"), Category: CategoryPassthrough},
		{Descriptor: passthroughTool("odoo_call_method", "Legacy alias of odoo.call_kw"), Category: CategoryPassthrough},
		{Descriptor: passthroughTool("odoo_search_read", "Legacy alias of odoo.search_read"), Category: CategoryPassthrough, Method: "search_read"},
		{Descriptor: passthroughTool("odoo_read", "Legacy alias of odoo.read"), Category: CategoryPassthrough, Method: "read"},
		{Descriptor: passthroughTool("odoo_create", "Legacy alias of odoo.create"), Category: CategoryPassthrough, Method: "create", RequiresOperationID: true},
		{Descriptor: passthroughTool("odoo_write", "Legacy alias of odoo.write"), Category: CategoryPassthrough, Method: "write", RequiresOperationID: true},
		{Descriptor: passthroughTool("odoo_unlink", "Legacy alias of odoo.unlink"), Category: CategoryPassthrough, Method: "unlink", RequiresOperationID: true},
	}
}

// resourceTemplates returns the fixed URI-template catalog of spec §4.9.
func resourceTemplates() []mcp.ResourceTemplate {
	return []mcp.ResourceTemplate{
		{
			URITemplate: "odoo://{model}/{id}",
			Name:        "record",
			Description: "A single Odoo record, read with default fields plus an optional ?fields= query parameter",
			MimeType:    "application/json",
			Operations:  []string{"read"},
		},
		{
			URITemplate: "odoo://{model}/list",
			Name:        "list",
			Description: "A search_read list, filtered by ?domain=, ?fields=, ?limit=, ?offset=, ?order=",
			MimeType:    "application/json",
			Operations:  []string{"search_read"},
		},
		{
			URITemplate: "odoo://{model}/binary/{field}/{id}",
			Name:        "binary",
			Description: "A binary field's decoded content",
			MimeType:    "application/octet-stream",
			Operations:  []string{"read"},
		},
	}
}
