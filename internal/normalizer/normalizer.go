// Package normalizer implements the canonical envelope reconciliation and
// per-Odoo-method argument extraction rules of spec §4.8. It is the
// single place in the gateway that accepts polymorphic client-supplied
// argument shapes (spec §9: "the normalizer is the single place that
// accepts polymorphism; internal calls use a single canonical record"),
// mirroring the tagged-variant-at-the-boundary idiom used across the
// example corpus's tool executors (rubicon-ClaraVerse's
// mcp-bridge/internal/mcp/executor.go dispatches on a raw arguments map
// before building a single typed call).
package normalizer

import (
	"github.com/odoomcp/gateway/internal/domain"
	"github.com/odoomcp/gateway/internal/gwerr"
)

// Call is the canonical, fully-resolved execute_kw invocation every tool
// handler eventually builds, regardless of what shape the client sent.
type Call struct {
	Model      string
	Method     string
	Positional []any
	Named      map[string]any
}

// Canonicalize rewrites legacy argument shapes into the canonical
// {"arguments": {...}} envelope's inner map, tolerating a bare top-level
// map, or nested "args"/"kwargs" wrappers (spec §4.8).
func Canonicalize(raw map[string]any) map[string]any {
	if inner, ok := raw["arguments"].(map[string]any); ok {
		return inner
	}
	return raw
}

// extractArgs pulls a positional-args-like list out of any of
// the shapes clients have historically sent: `args`, or nothing.
func extractArgs(arguments map[string]any) []any {
	if args, ok := arguments["args"].([]any); ok {
		return args
	}
	return nil
}

func extractKwargs(arguments map[string]any) map[string]any {
	if kw, ok := arguments["kwargs"].(map[string]any); ok {
		return kw
	}
	return nil
}

// argAt returns args[i] if present.
func argAt(args []any, i int) (any, bool) {
	if i < len(args) {
		return args[i], true
	}
	return nil, false
}

// Create implements the §4.8 `create` extraction rule.
func Create(model string, arguments map[string]any) (Call, error) {
	args := extractArgs(arguments)
	kwargs := extractKwargs(arguments)

	var values map[string]any
	switch {
	case isMap(arguments["values"]):
		values = arguments["values"].(map[string]any)
	default:
		if v0, ok := argAt(args, 0); ok {
			if m, ok := v0.(map[string]any); ok {
				values = m
			}
		}
	}
	if values == nil && kwargs != nil {
		if v, ok := kwargs["values"].(map[string]any); ok {
			values = v
		} else {
			values = kwargs
		}
	}
	if values == nil {
		return Call{}, gwerr.Validation(gwerr.ValidationField, "create requires values")
	}
	return Call{Model: model, Method: "create", Positional: []any{values}, Named: map[string]any{}}, nil
}

// Read implements the §4.8 `read` extraction rule.
func Read(model string, arguments map[string]any) (Call, error) {
	args := extractArgs(arguments)

	ids := arguments["record_ids"]
	if ids == nil {
		ids, _ = argAt(args, 0)
	}
	if ids == nil {
		return Call{}, gwerr.Validation(gwerr.ValidationField, "read requires record_ids")
	}

	fields := arguments["fields"]
	if fields == nil {
		fields, _ = argAt(args, 1)
	}
	if fields == nil {
		fields = []any{"id", "name"}
	}

	named := map[string]any{}
	if kwargs := extractKwargs(arguments); kwargs != nil {
		if ctx, ok := kwargs["context"]; ok {
			named["context"] = ctx
		}
	}
	// fields MUST NOT appear in named -- it is always positional here.
	delete(named, "fields")

	return Call{Model: model, Method: "read", Positional: []any{ids, fields}, Named: named}, nil
}

// SearchLike covers search/search_read/search_count, all sharing the
// same domain-first positional shape.
func SearchLike(compiler *domain.Compiler, model, method string, arguments map[string]any) (Call, []string, error) {
	args := extractArgs(arguments)

	rawDomain := arguments["domain_json"]
	if rawDomain == nil {
		rawDomain, _ = argAt(args, 0)
	}
	res, err := compiler.Compile(rawDomain)
	if err != nil {
		return Call{}, nil, err
	}

	positional := []any{res.Compiled}
	if method == "search_read" {
		fields := firstNonNil(arguments["fields"], argAtOrNil(args, 1))
		limit := firstNonNil(arguments["limit"], argAtOrNil(args, 2))
		offset := firstNonNil(arguments["offset"], argAtOrNil(args, 3))
		order := firstNonNil(arguments["order"], argAtOrNil(args, 4))
		named := map[string]any{}
		if fields != nil {
			named["fields"] = fields
		}
		if limit != nil {
			named["limit"] = limit
		}
		if offset != nil {
			named["offset"] = offset
		}
		if order != nil {
			named["order"] = order
		}
		return Call{Model: model, Method: method, Positional: positional, Named: named}, res.Warnings, nil
	}

	if method == "search" {
		limit := firstNonNil(arguments["limit"], argAtOrNil(args, 1))
		offset := firstNonNil(arguments["offset"], argAtOrNil(args, 2))
		order := firstNonNil(arguments["order"], argAtOrNil(args, 3))
		named := map[string]any{}
		if limit != nil {
			named["limit"] = limit
		}
		if offset != nil {
			named["offset"] = offset
		}
		if order != nil {
			named["order"] = order
		}
		return Call{Model: model, Method: method, Positional: positional, Named: named}, res.Warnings, nil
	}

	// search_count
	return Call{Model: model, Method: method, Positional: positional, Named: map[string]any{}}, res.Warnings, nil
}

// ReadGroup implements the §4.8 `read_group` extraction rule.
func ReadGroup(compiler *domain.Compiler, model string, arguments map[string]any) (Call, []string, error) {
	args := extractArgs(arguments)

	var rawDomain, fields, groupby any
	var extraKwargs map[string]any
	if v0, ok := argAt(args, 0); ok {
		if obj, ok := v0.(map[string]any); ok && len(args) == 1 {
			rawDomain = obj["domain"]
			fields = obj["fields"]
			groupby = obj["groupby"]
			if kw, ok := obj["kwargs"].(map[string]any); ok {
				extraKwargs = kw
			}
		} else {
			rawDomain = v0
			fields, _ = argAt(args, 1)
			groupby, _ = argAt(args, 2)
		}
	} else {
		rawDomain = arguments["domain_json"]
		fields = arguments["fields"]
		groupby = arguments["groupby"]
	}

	res, err := compiler.Compile(rawDomain)
	if err != nil {
		return Call{}, nil, err
	}
	if fields == nil {
		fields = []any{}
	}
	if groupby == nil {
		groupby = []any{}
	}

	named := map[string]any{}
	for _, k := range []string{"limit", "offset", "orderby", "lazy"} {
		if v, ok := arguments[k]; ok {
			named[k] = v
		} else if extraKwargs != nil {
			if v, ok := extraKwargs[k]; ok {
				named[k] = v
			}
		}
	}

	return Call{Model: model, Method: "read_group", Positional: []any{res.Compiled, fields, groupby}, Named: named}, res.Warnings, nil
}

// Write implements the §4.8 `write` extraction rule.
func Write(model string, arguments map[string]any) (Call, error) {
	ids := arguments["record_ids"]
	values, _ := arguments["values"].(map[string]any)
	if ids == nil || values == nil {
		return Call{}, gwerr.Validation(gwerr.ValidationField, "write requires record_ids and values")
	}
	return Call{Model: model, Method: "write", Positional: []any{ids, values}, Named: map[string]any{}}, nil
}

// Unlink implements the §4.8 `unlink` extraction rule.
func Unlink(model string, arguments map[string]any) (Call, error) {
	ids := arguments["record_ids"]
	if ids == nil {
		return Call{}, gwerr.Validation(gwerr.ValidationField, "unlink requires record_ids")
	}
	return Call{Model: model, Method: "unlink", Positional: []any{ids}, Named: map[string]any{}}, nil
}

// Action implements the §4.8 action-method extraction rule.
func Action(model, method string, arguments map[string]any) (Call, error) {
	ids := arguments["record_ids"]
	if ids == nil {
		if id, ok := arguments["record_id"]; ok {
			ids = []any{id}
		}
	}
	if ids == nil {
		return Call{}, gwerr.Validation(gwerr.ValidationField, "action call requires record_id(s)")
	}
	named := map[string]any{}
	if ctx, ok := arguments["context"]; ok {
		named["context"] = ctx
	}
	positional := []any{ids}
	if params, ok := arguments["parameters"]; ok {
		positional = append(positional, params)
	}
	return Call{Model: model, Method: method, Positional: positional, Named: named}, nil
}

func isMap(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

func argAtOrNil(args []any, i int) any {
	v, _ := argAt(args, i)
	return v
}

func firstNonNil(a, b any) any {
	if a != nil {
		return a
	}
	return b
}
