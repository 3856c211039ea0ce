package dispatcher

import (
	"context"
	"fmt"
	"sort"

	"github.com/odoomcp/gateway/internal/cache"
	"github.com/odoomcp/gateway/internal/gwerr"
	"github.com/odoomcp/gateway/internal/mcp"
	"github.com/odoomcp/gateway/internal/normalizer"
	"github.com/odoomcp/gateway/internal/odoorpc"
	"github.com/odoomcp/gateway/internal/registry"
)

// execute routes a validated, authorized, rate-checked call to its tool
// implementation. It returns the model/method it touched (for audit
// logging) alongside the result.
func (d *Dispatcher) execute(ctx context.Context, spec registry.ToolSpec, name string, args map[string]any) (*mcp.CallToolResult, string, string, error) {
	switch name {
	case "echo":
		msg, _ := args["message"].(string)
		return mcp.NewToolResult(map[string]any{"message": msg}), "", "", nil
	case "create_session":
		return d.execCreateSession(ctx, args)
	case "destroy_session":
		return d.execDestroySession(ctx, args)
	case "odoo.schema.version":
		return mcp.NewToolResult(map[string]any{"version": fmt.Sprintf("v%d", d.schemaVersionTag())}), "", "", nil
	case "odoo.domain.validate":
		return d.execDomainValidate(args)
	}

	switch spec.Category {
	case registry.CategoryOdooRead:
		return d.execOdooRead(ctx, spec, name, args)
	case registry.CategoryOdooWrite:
		return d.execOdooWrite(ctx, spec, args)
	case registry.CategoryOdooAction:
		return d.execOdooAction(ctx, name, args)
	case registry.CategoryPassthrough:
		return d.execPassthrough(ctx, spec, args)
	default:
		return nil, "", "", gwerr.New(gwerr.KindTool, "tool "+name+" has no executor")
	}
}

func (d *Dispatcher) execCreateSession(ctx context.Context, args map[string]any) (*mcp.CallToolResult, string, string, error) {
	username, _ := args["username"].(string)
	apiKey, _ := args["api_key"].(string)
	s, err := d.deps.Sessions.CreateSession(ctx, username, apiKey)
	if err != nil {
		return nil, "", "", err
	}
	return mcp.NewToolResult(map[string]any{"session_id": s.ID, "uid": s.UID}), "", "", nil
}

func (d *Dispatcher) execDestroySession(ctx context.Context, args map[string]any) (*mcp.CallToolResult, string, string, error) {
	sessionID, _ := args["session_id"].(string)
	if err := d.deps.Sessions.Destroy(ctx, sessionID); err != nil {
		return nil, "", "", err
	}
	return mcp.NewToolResult(map[string]any{"ok": true}), "", "", nil
}

func (d *Dispatcher) execDomainValidate(args map[string]any) (*mcp.CallToolResult, string, string, error) {
	model, _ := args["model"].(string)
	res, err := d.deps.Domain.Compile(args["domain_json"])
	if err != nil {
		ge, _ := gwerr.As(err)
		return mcp.NewToolResult(map[string]any{
			"ok":       false,
			"compiled": nil,
			"errors":   []string{ge.Message},
			"hints":    []string{},
		}), model, "", nil
	}
	return mcp.NewToolResult(map[string]any{
		"ok":       true,
		"compiled": res.Compiled,
		"errors":   []string{},
		"hints":    res.Warnings,
	}), model, "", nil
}

// acquire borrows a pool connection for the duration of fn, releasing it
// with the correct success flag on every exit path (spec §4.2's
// invariant: "every Acquire has a matching release on every exit path").
func (d *Dispatcher) acquire(ctx context.Context, fn func(odoorpc.Handler) (any, error)) (any, error) {
	handler, release, err := d.deps.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	result, err := fn(handler)
	release(err == nil)
	return result, err
}

// cachedExecuteKw serves cacheable read methods (spec §4.5) from the
// configured Cache, falling through to Odoo on miss.
func (d *Dispatcher) cachedExecuteKw(ctx context.Context, model, method string, positional []any, named map[string]any) (any, error) {
	key := cache.Key{
		Database: d.deps.Credentials.Database,
		UID:      d.deps.Credentials.UID,
		Model:    model,
		Method:   method,
		Args:     map[string]any{"positional": positional, "named": named},
	}
	if v, ok, err := d.deps.Cache.Get(ctx, key); err == nil && ok {
		return v, nil
	}
	result, err := d.acquire(ctx, func(h odoorpc.Handler) (any, error) {
		return h.ExecuteKw(ctx, model, method, positional, named)
	})
	if err != nil {
		return nil, err
	}
	_ = d.deps.Cache.Set(ctx, key, result, d.deps.CacheTTL)
	return result, nil
}

// fieldsPresence reports whether model carries company_id/user_id,
// discovered via a cached fields_get call (spec §4.7's implicit-domain
// injection precondition).
func (d *Dispatcher) fieldsPresence(ctx context.Context, model string) (hasCompany, hasUser bool) {
	result, err := d.cachedExecuteKw(ctx, model, "fields_get",
		[]any{[]any{"company_id", "user_id"}},
		map[string]any{"attributes": []any{"type"}})
	if err != nil {
		return false, false
	}
	fields, ok := result.(map[string]any)
	if !ok {
		return false, false
	}
	_, hasCompany = fields["company_id"]
	_, hasUser = fields["user_id"]
	return hasCompany, hasUser
}

func toRecordMaps(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func (d *Dispatcher) execOdooRead(ctx context.Context, spec registry.ToolSpec, name string, args map[string]any) (*mcp.CallToolResult, string, string, error) {
	model, _ := args["model"].(string)
	if model == "" {
		return nil, "", spec.Method, gwerr.Validation(gwerr.ValidationField, "model is required")
	}

	switch spec.Method {
	case "search_read":
		return d.execSearchRead(ctx, model, args)
	case "read":
		call, err := normalizer.Read(model, args)
		if err != nil {
			return nil, model, "read", err
		}
		result, err := d.cachedExecuteKw(ctx, model, call.Method, call.Positional, call.Named)
		if err != nil {
			return nil, model, "read", err
		}
		records := d.Masker().MaskRecords(toRecordMaps(result))
		return mcp.NewToolResult(map[string]any{"records": records}), model, "read", nil
	case "fields_get":
		result, err := d.cachedExecuteKw(ctx, model, "fields_get", []any{}, map[string]any{})
		if err != nil {
			return nil, model, "fields_get", err
		}
		return mcp.NewToolResult(map[string]any{"fields": fieldDefsFrom(result)}), model, "fields_get", nil
	case "name_search":
		return d.execNameSearchLike(ctx, name, model, args)
	default:
		return nil, model, spec.Method, gwerr.New(gwerr.KindTool, "unmapped read tool "+name)
	}
}

func (d *Dispatcher) execSearchRead(ctx context.Context, model string, args map[string]any) (*mcp.CallToolResult, string, string, error) {
	call, warnings, err := normalizer.SearchLike(d.deps.Domain, model, "search_read", args)
	if err != nil {
		return nil, model, "search_read", err
	}
	compiled, _ := call.Positional[0].([]any)
	hasCompany, hasUser := d.fieldsPresence(ctx, model)
	compiled = d.Implicit().Inject(model, compiled, d.deps.AllowedCompanyIDs, d.deps.Credentials.UID, hasCompany, hasUser)
	call.Positional[0] = compiled

	if limit, ok := call.Named["limit"]; ok {
		if n, ok := asInt(limit); ok && n > d.deps.MaxRecordsLimit {
			call.Named["limit"] = d.deps.MaxRecordsLimit
		}
	}

	result, err := d.cachedExecuteKw(ctx, model, call.Method, call.Positional, call.Named)
	if err != nil {
		return nil, model, "search_read", err
	}
	records := d.Masker().MaskRecords(toRecordMaps(result))
	_ = warnings
	return mcp.NewToolResult(map[string]any{
		"records": records,
		"count":   len(records),
		"domain":  compiled,
	}), model, "search_read", nil
}

func (d *Dispatcher) execNameSearchLike(ctx context.Context, toolName, model string, args map[string]any) (*mcp.CallToolResult, string, string, error) {
	if toolName == "odoo.picklists" {
		return d.execPicklists(ctx, model, args)
	}
	name, _ := args["name"].(string)
	operator, _ := args["operator"].(string)
	if operator == "" {
		operator = "ilike"
	}
	limit := 10
	if n, ok := asInt(args["limit"]); ok {
		limit = n
	}
	named := map[string]any{"name": name, "operator": operator, "limit": limit}
	result, err := d.cachedExecuteKw(ctx, model, "name_search", []any{}, named)
	if err != nil {
		return nil, model, "name_search", err
	}
	return mcp.NewToolResult(map[string]any{"results": result}), model, "name_search", nil
}

func (d *Dispatcher) execPicklists(ctx context.Context, model string, args map[string]any) (*mcp.CallToolResult, string, string, error) {
	field, _ := args["field"].(string)
	limit := 100
	if n, ok := asInt(args["limit"]); ok {
		limit = n
	}
	fieldsResult, err := d.cachedExecuteKw(ctx, model, "fields_get", []any{[]any{field}}, map[string]any{"attributes": []any{"selection", "relation"}})
	if err != nil {
		return nil, model, "fields_get", err
	}
	fields, _ := fieldsResult.(map[string]any)
	def, _ := fields[field].(map[string]any)
	if def == nil {
		return nil, model, "fields_get", gwerr.Validation(gwerr.ValidationField, "unknown field "+field+" on "+model)
	}
	if selection, ok := def["selection"].([]any); ok && len(selection) > 0 {
		values := make([]map[string]any, 0, len(selection))
		for _, pair := range selection {
			p, ok := pair.([]any)
			if !ok || len(p) != 2 {
				continue
			}
			values = append(values, map[string]any{"id": p[0], "label": p[1]})
		}
		return mcp.NewToolResult(map[string]any{"values": values}), model, "fields_get", nil
	}
	relation, _ := def["relation"].(string)
	if relation == "" {
		return mcp.NewToolResult(map[string]any{"values": []map[string]any{}}), model, "fields_get", nil
	}
	related, err := d.cachedExecuteKw(ctx, relation, "name_search", []any{}, map[string]any{"name": "", "limit": limit})
	if err != nil {
		return nil, relation, "name_search", err
	}
	pairs, _ := related.([]any)
	values := make([]map[string]any, 0, len(pairs))
	for _, pair := range pairs {
		p, ok := pair.([]any)
		if !ok || len(p) != 2 {
			continue
		}
		values = append(values, map[string]any{"id": p[0], "label": p[1]})
	}
	return mcp.NewToolResult(map[string]any{"values": values}), relation, "name_search", nil
}

func fieldDefsFrom(v any) []map[string]any {
	fields, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]map[string]any, 0, len(names))
	for _, name := range names {
		attrs, _ := fields[name].(map[string]any)
		def := map[string]any{"name": name}
		for k, v := range attrs {
			def[k] = v
		}
		out = append(out, def)
	}
	return out
}

func (d *Dispatcher) execOdooWrite(ctx context.Context, spec registry.ToolSpec, args map[string]any) (*mcp.CallToolResult, string, string, error) {
	model, _ := args["model"].(string)
	if model == "" {
		return nil, "", spec.Method, gwerr.Validation(gwerr.ValidationField, "model is required")
	}

	var call normalizer.Call
	var err error
	switch spec.Method {
	case "create":
		call, err = normalizer.Create(model, args)
	case "write":
		call, err = normalizer.Write(model, args)
	case "unlink":
		call, err = normalizer.Unlink(model, args)
	default:
		return nil, model, spec.Method, gwerr.New(gwerr.KindTool, "unmapped write method "+spec.Method)
	}
	if err != nil {
		return nil, model, spec.Method, err
	}

	result, err := d.acquire(ctx, func(h odoorpc.Handler) (any, error) {
		return h.ExecuteKw(ctx, model, call.Method, call.Positional, call.Named)
	})
	if err != nil {
		return nil, model, spec.Method, err
	}

	ids := affectedIDs(spec.Method, call, result)
	d.invalidateAndNotify(ctx, model, ids)

	switch spec.Method {
	case "create":
		return mcp.NewToolResult(map[string]any{"id": result}), model, "create", nil
	case "write":
		return mcp.NewToolResult(map[string]any{"updated": result}), model, "write", nil
	default:
		return mcp.NewToolResult(map[string]any{"deleted": result}), model, "unlink", nil
	}
}

// affectedIDs recovers the record ids a write touched, for cache
// invalidation and resource-update notifications (spec §4.12(a)).
func affectedIDs(method string, call normalizer.Call, result any) []int64 {
	if method == "create" {
		if id, ok := asInt(result); ok {
			return []int64{int64(id)}
		}
		return nil
	}
	if len(call.Positional) == 0 {
		return nil
	}
	return toInt64Slice(call.Positional[0])
}

func toInt64Slice(v any) []int64 {
	list, ok := v.([]any)
	if !ok {
		if n, ok := asInt(v); ok {
			return []int64{int64(n)}
		}
		return nil
	}
	out := make([]int64, 0, len(list))
	for _, item := range list {
		if n, ok := asInt(item); ok {
			out = append(out, int64(n))
		}
	}
	return out
}

// invalidateAndNotify bumps the model's cache generation and publishes
// notifications/resources/updated for every affected record URI, before
// the tool's success response is returned (spec §5's ordering guarantee).
func (d *Dispatcher) invalidateAndNotify(ctx context.Context, model string, ids []int64) {
	_ = d.deps.Cache.InvalidateModel(ctx, model)
	d.bumpGlobalSchemaVersion()
	for _, id := range ids {
		d.deps.Bus.Publish(ctx, registry.URIForRecord(model, id))
	}
	d.deps.Bus.Publish(ctx, "odoo://"+model+"/list")
}

func (d *Dispatcher) execOdooAction(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, string, string, error) {
	if name == "odoo.schema.models" {
		return d.execSchemaModels(ctx, args)
	}
	model, _ := args["model"].(string)
	if model == "" {
		return nil, "", "", gwerr.Validation(gwerr.ValidationField, "model is required")
	}

	switch name {
	case "odoo.actions.next_steps":
		return d.execNextSteps(ctx, model, args)
	case "odoo.actions.call":
		return d.execActionsCall(ctx, model, args)
	default:
		return nil, model, "", gwerr.New(gwerr.KindTool, "unmapped action tool "+name)
	}
}

func (d *Dispatcher) execSchemaModels(ctx context.Context, args map[string]any) (*mcp.CallToolResult, string, string, error) {
	result, err := d.cachedExecuteKw(ctx, "ir.model", "search_read", []any{[]any{}}, map[string]any{"fields": []any{"model"}})
	if err != nil {
		return nil, "ir.model", "search_read", err
	}
	records := toRecordMaps(result)
	models := make([]string, 0, len(records))
	for _, r := range records {
		if m, ok := r["model"].(string); ok {
			models = append(models, m)
		}
	}
	sort.Strings(models)
	return mcp.NewToolResult(map[string]any{"models": models}), "ir.model", "search_read", nil
}

func (d *Dispatcher) execNextSteps(ctx context.Context, model string, args map[string]any) (*mcp.CallToolResult, string, string, error) {
	recordID, _ := asInt(args["record_id"])
	result, err := d.acquire(ctx, func(h odoorpc.Handler) (any, error) {
		return h.ExecuteKw(ctx, model, "next_steps", []any{[]any{int64(recordID)}}, map[string]any{})
	})
	if err != nil {
		return nil, model, "next_steps", err
	}
	payload, _ := result.(map[string]any)
	if payload == nil {
		payload = map[string]any{"current_state": nil, "available_actions": []any{}, "suggested_actions": []any{}, "hints": []any{}}
	}
	return mcp.NewToolResult(payload), model, "next_steps", nil
}

func (d *Dispatcher) execActionsCall(ctx context.Context, model string, args map[string]any) (*mcp.CallToolResult, string, string, error) {
	method, _ := args["method"].(string)
	if method == "" {
		return nil, model, "", gwerr.Validation(gwerr.ValidationField, "method is required")
	}
	call, err := normalizer.Action(model, method, args)
	if err != nil {
		return nil, model, method, err
	}
	result, err := d.acquire(ctx, func(h odoorpc.Handler) (any, error) {
		return h.ExecuteKw(ctx, model, call.Method, call.Positional, call.Named)
	})
	if err != nil {
		return nil, model, method, err
	}
	d.invalidateAndNotify(ctx, model, toInt64Slice(call.Positional[0]))
	return mcp.NewToolResult(map[string]any{"result": result}), model, method, nil
}

// execPassthrough serves the legacy execute_kw-shaped tools of
// SPEC_FULL.md §6: either a fully generic {model, method, args, kwargs}
// call, or a fixed-method alias that reuses the same normalizer rule as
// its canonical counterpart.
func (d *Dispatcher) execPassthrough(ctx context.Context, spec registry.ToolSpec, args map[string]any) (*mcp.CallToolResult, string, string, error) {
	model, _ := args["model"].(string)
	if model == "" {
		return nil, "", spec.Method, gwerr.Validation(gwerr.ValidationField, "model is required")
	}

	if spec.Method == "" {
		method, _ := args["method"].(string)
		positional, _ := args["args"].([]any)
		named, _ := args["kwargs"].(map[string]any)
		result, err := d.acquire(ctx, func(h odoorpc.Handler) (any, error) {
			return h.ExecuteKw(ctx, model, method, positional, named)
		})
		if err != nil {
			return nil, model, method, err
		}
		_ = d.deps.Cache.InvalidateModel(ctx, model)
		return mcp.NewToolResult(result), model, method, nil
	}

	var call normalizer.Call
	var err error
	var warnings []string
	switch spec.Method {
	case "search_read":
		call, warnings, err = normalizer.SearchLike(d.deps.Domain, model, "search_read", args)
	case "read":
		call, err = normalizer.Read(model, args)
	case "create":
		call, err = normalizer.Create(model, args)
	case "write":
		call, err = normalizer.Write(model, args)
	case "unlink":
		call, err = normalizer.Unlink(model, args)
	default:
		return nil, model, spec.Method, gwerr.New(gwerr.KindTool, "unmapped passthrough method "+spec.Method)
	}
	_ = warnings
	if err != nil {
		return nil, model, spec.Method, err
	}

	if spec.Method == "search_read" || spec.Method == "read" {
		result, err := d.cachedExecuteKw(ctx, model, call.Method, call.Positional, call.Named)
		if err != nil {
			return nil, model, spec.Method, err
		}
		return mcp.NewToolResult(result), model, spec.Method, nil
	}

	result, err := d.acquire(ctx, func(h odoorpc.Handler) (any, error) {
		return h.ExecuteKw(ctx, model, call.Method, call.Positional, call.Named)
	})
	if err != nil {
		return nil, model, spec.Method, err
	}
	d.invalidateAndNotify(ctx, model, affectedIDs(spec.Method, call, result))
	return mcp.NewToolResult(result), model, spec.Method, nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
