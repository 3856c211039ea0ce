package dispatcher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/odoomcp/gateway/internal/gwerr"
	"github.com/odoomcp/gateway/internal/mcp"
	"github.com/odoomcp/gateway/internal/normalizer"
	"github.com/odoomcp/gateway/internal/registry"
)

// handleCallTool runs the Received -> Validated -> Authorized ->
// RateChecked -> Executing -> Responded state machine of spec §4.10 for
// one call_tool request.
func (d *Dispatcher) handleCallTool(ctx context.Context, clientKey string, raw json.RawMessage) (*mcp.CallToolResult, error) {
	// Received
	var params mcp.CallToolParams
	var topLevel map[string]any
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, gwerr.Validation(gwerr.ValidationSchema, "invalid call_tool params")
	}
	if err := json.Unmarshal(raw, &topLevel); err != nil {
		return nil, gwerr.Validation(gwerr.ValidationSchema, "invalid call_tool params")
	}

	spec, ok := d.deps.Registry.Get(params.Name)
	if !ok {
		return nil, gwerr.NotFound(gwerr.NotFoundMethod, "unknown tool "+params.Name)
	}

	argsMap, err := decodeArguments(params, topLevel)
	if err != nil {
		return nil, err
	}

	// Validated
	if err := registry.ValidateAgainstSchema(spec.Descriptor.InputSchema, argsMap); err != nil {
		d.Audit().Failure(ctx, clientKey, params.Name, "", "", argsMap, err, 0)
		return nil, err
	}

	// Authorized
	if params.SessionID != "" {
		if _, err := d.deps.Sessions.Resolve(ctx, params.SessionID); err != nil {
			d.Audit().Failure(ctx, clientKey, params.Name, "", "", argsMap, err, 0)
			return nil, err
		}
	}

	// RateChecked
	rateKey := clientKey
	if params.SessionID != "" {
		rateKey = params.SessionID
	}
	if err := d.RateLimiter().Wait(ctx, rateKey); err != nil {
		d.Audit().Failure(ctx, clientKey, params.Name, "", "", argsMap, err, 0)
		return nil, err
	}

	operationID, _ := argsMap["operation_id"].(string)
	opKey := params.Name + ":" + operationID
	replay := spec.RequiresOperationID && operationID != "" && d.deps.IdempotencyWindow > 0
	if replay {
		if cached, ok := d.operations.Get(opKey); ok {
			return cached.result, cached.err
		}
	}

	// Executing
	start := time.Now()
	result, model, method, err := d.execute(ctx, spec, params.Name, argsMap)
	duration := time.Since(start)

	if replay {
		d.operations.Add(opKey, opResult{result: result, err: err})
	}

	// Responded
	if err != nil {
		d.Audit().Failure(ctx, clientKey, params.Name, model, method, argsMap, err, duration)
		return nil, err
	}
	d.Audit().Success(ctx, clientKey, params.Name, model, method, argsMap, resultSummary(result), duration)
	return result, nil
}

// decodeArguments reconciles the canonical {"arguments": {...}} envelope
// with the legacy shapes the normalizer tolerates (spec §4.8), stripping
// the call_tool envelope's own name/session_id keys if a legacy client
// flattened everything into one object.
func decodeArguments(params mcp.CallToolParams, topLevel map[string]any) (map[string]any, error) {
	if len(params.Arguments) > 0 {
		var inner map[string]any
		if err := json.Unmarshal(params.Arguments, &inner); err != nil {
			return nil, gwerr.Validation(gwerr.ValidationSchema, "arguments must be a JSON object")
		}
		return normalizer.Canonicalize(map[string]any{"arguments": inner}), nil
	}
	args := normalizer.Canonicalize(topLevel)
	delete(args, "name")
	delete(args, "session_id")
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func resultSummary(r *mcp.CallToolResult) string {
	if r == nil {
		return ""
	}
	b, err := json.Marshal(r.StructuredContent)
	if err != nil {
		return ""
	}
	if len(b) > 200 {
		return string(b[:200])
	}
	return string(b)
}
