// Package registry is the declarative tool/resource catalog of spec §4.8:
// every tool's JSON Schema, and the metadata the dispatcher needs to route
// a call through the normalizer, cache, and security layers, without the
// registry itself touching Odoo, the pool, or the cache (those belong to
// internal/dispatcher). It is grounded on the shape of the teacher's
// mcpservice.ToolsContainer (mcpservice/static_tools.go) generalized from
// "descriptor + handler" pairs to "descriptor + routing metadata" pairs,
// since this gateway's execution semantics (rate limiting, caching,
// security) are cross-cutting and live in the dispatcher instead of in
// each tool's own handler closure.
package registry

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/odoomcp/gateway/internal/mcp"
)

// Category classifies how the dispatcher must route a tool call.
type Category string

const (
	// CategoryLocal tools are served without a pooled Odoo call (echo,
	// create_session, destroy_session); create_session authenticates
	// through the session manager.
	CategoryLocal Category = "local"
	// CategoryOdooRead tools call a cacheable, read-only Odoo method.
	CategoryOdooRead Category = "odoo_read"
	// CategoryOdooWrite tools call create/write/unlink and invalidate the
	// cache for their model; they accept an optional operation_id.
	CategoryOdooWrite Category = "odoo_write"
	// CategoryOdooAction tools call an arbitrary model method (action_*)
	// that is neither cacheable nor a plain CRUD write.
	CategoryOdooAction Category = "odoo_action"
	// CategoryPassthrough tools are the legacy execute_kw-shaped tools
	// whose target method is caller-supplied rather than fixed.
	CategoryPassthrough Category = "passthrough"
)

// ToolSpec is one row of the declarative catalog.
type ToolSpec struct {
	Descriptor mcp.Tool
	Category   Category

	// Method is the fixed Odoo method this tool maps to. Empty for
	// CategoryLocal tools and for tools whose method is caller-supplied
	// (odoo.call_kw and its aliases odoo_execute_kw and odoo_call_method,
	// odoo.actions.call); the other passthrough aliases such as
	// odoo_search_read carry their fixed method here.
	Method string

	// RequiresOperationID marks write/action tools eligible for the
	// idempotent-replay window (spec §4.8).
	RequiresOperationID bool
}

// Registry is the immutable-after-construction tool/resource catalog.
// Get and List take a read lock, mirroring the teacher's RWMutex-guarded
// container; nothing changes the catalog after New.
type Registry struct {
	mu        sync.RWMutex
	tools     []string // name order, stable for pagination
	specs     map[string]ToolSpec
	resources []mcp.ResourceTemplate
	pageSize  int
}

// New builds the full static catalog (spec §6's tool table plus the
// supplemented legacy passthrough tools of SPEC_FULL.md §6).
func New() *Registry {
	r := &Registry{specs: map[string]ToolSpec{}, pageSize: 50, resources: resourceTemplates()}
	for _, spec := range buildCatalog() {
		r.tools = append(r.tools, spec.Descriptor.Name)
		r.specs[spec.Descriptor.Name] = spec
	}
	return r
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (ToolSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	return spec, ok
}

// List returns one page of tool descriptors, cursor being the offset
// encoded as a decimal string (matches the teacher's ListTools cursor
// convention in mcpservice/static_tools.go).
func (r *Registry) List(cursor string) (mcp.ListToolsResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 || n > len(r.tools) {
			return mcp.ListToolsResult{}, fmt.Errorf("registry: invalid cursor %q", cursor)
		}
		start = n
	}
	end := start + r.pageSize
	if end > len(r.tools) {
		end = len(r.tools)
	}
	out := make([]mcp.Tool, 0, end-start)
	for _, name := range r.tools[start:end] {
		out = append(out, r.specs[name].Descriptor)
	}
	result := mcp.ListToolsResult{Tools: out}
	if end < len(r.tools) {
		result.NextCursor = strconv.Itoa(end)
	}
	return result, nil
}

// ListResourceTemplates returns the fixed URI-template catalog (spec §4.9).
func (r *Registry) ListResourceTemplates() []mcp.ResourceTemplate {
	out := make([]mcp.ResourceTemplate, len(r.resources))
	copy(out, r.resources)
	return out
}
