package dispatcher

import (
	"context"
	"encoding/json"

	"github.com/odoomcp/gateway/internal/gwerr"
	"github.com/odoomcp/gateway/internal/mcp"
	"github.com/odoomcp/gateway/internal/odoorpc"
	"github.com/odoomcp/gateway/internal/registry"
	"github.com/odoomcp/gateway/internal/subscribe"
)

// handleReadResource serves the three URI templates of spec §4.9,
// reusing the same cached-execute path as their tool equivalents.
func (d *Dispatcher) handleReadResource(ctx context.Context, raw json.RawMessage) (mcp.ReadResourceResult, error) {
	var params mcp.ReadResourceParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return mcp.ReadResourceResult{}, gwerr.Validation(gwerr.ValidationSchema, "invalid read_resource params")
	}
	parsed, err := registry.ParseResourceURI(params.URI)
	if err != nil {
		return mcp.ReadResourceResult{}, err
	}

	switch parsed.Kind {
	case registry.ResourceRecord:
		fields := parsed.Fields
		if len(fields) == 0 {
			fields = []string{"id", "name"}
		}
		result, err := d.cachedExecuteKw(ctx, parsed.Model, "read",
			[]any{[]any{parsed.RecordID}, toAnySlice(fields)}, map[string]any{})
		if err != nil {
			return mcp.ReadResourceResult{}, err
		}
		records := d.Masker().MaskRecords(toRecordMaps(result))
		return jsonResource(params.URI, map[string]any{"records": records}), nil

	case registry.ResourceList:
		domainStr, _ := parsed.Domain.(string)
		compiled, err := d.deps.Domain.Compile(domainStr)
		if err != nil {
			return mcp.ReadResourceResult{}, err
		}
		named := map[string]any{}
		if len(parsed.Fields) > 0 {
			named["fields"] = toAnySlice(parsed.Fields)
		}
		if parsed.Limit > 0 {
			named["limit"] = parsed.Limit
		}
		if parsed.Offset > 0 {
			named["offset"] = parsed.Offset
		}
		if parsed.Order != "" {
			named["order"] = parsed.Order
		}
		result, err := d.cachedExecuteKw(ctx, parsed.Model, "search_read", []any{compiled.Compiled}, named)
		if err != nil {
			return mcp.ReadResourceResult{}, err
		}
		records := d.Masker().MaskRecords(toRecordMaps(result))
		return jsonResource(params.URI, map[string]any{"records": records, "count": len(records)}), nil

	case registry.ResourceBinary:
		result, err := d.acquireHandler(ctx, func(h odoorpc.Handler) (any, error) {
			return h.ExecuteKw(ctx, parsed.Model, "read", []any{[]any{parsed.RecordID}, []any{parsed.Field}}, map[string]any{})
		})
		if err != nil {
			return mcp.ReadResourceResult{}, err
		}
		records := toRecordMaps(result)
		if len(records) == 0 {
			return mcp.ReadResourceResult{}, gwerr.NotFound(gwerr.NotFoundRecord, "record not found")
		}
		blob, _ := records[0][parsed.Field].(string)
		return mcp.ReadResourceResult{Contents: []mcp.ResourceContents{{
			URI: params.URI, MimeType: "application/octet-stream", Blob: blob,
		}}}, nil
	}
	return mcp.ReadResourceResult{}, gwerr.Validation(gwerr.ValidationGeneric, "unhandled resource kind")
}

func (d *Dispatcher) acquireHandler(ctx context.Context, fn func(odoorpc.Handler) (any, error)) (any, error) {
	return d.acquire(ctx, fn)
}

func jsonResource(uri string, v any) mcp.ReadResourceResult {
	b, _ := json.Marshal(v)
	return mcp.ReadResourceResult{Contents: []mcp.ResourceContents{{
		URI: uri, MimeType: "application/json", Text: string(b),
	}}}
}

func toAnySlice(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

func (d *Dispatcher) handleSubscribeResource(clientKey string, raw json.RawMessage) (map[string]any, error) {
	var params mcp.SubscribeResourceParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, gwerr.Validation(gwerr.ValidationSchema, "invalid subscribe_resource params")
	}
	if _, err := registry.ParseResourceURI(params.URI); err != nil {
		return nil, err
	}
	sink := d.deps.Bus.Subscribe(params.URI, 0)

	d.subMu.Lock()
	if d.subs[clientKey] == nil {
		d.subs[clientKey] = make(map[string]*subscribe.Sink)
	}
	d.subs[clientKey][params.URI] = sink
	d.subMu.Unlock()

	return map[string]any{"ok": true}, nil
}

func (d *Dispatcher) handleUnsubscribeResource(clientKey string, raw json.RawMessage) (map[string]any, error) {
	var params mcp.SubscribeResourceParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, gwerr.Validation(gwerr.ValidationSchema, "invalid unsubscribe_resource params")
	}
	d.subMu.Lock()
	sink, ok := d.subs[clientKey][params.URI]
	if ok {
		delete(d.subs[clientKey], params.URI)
	}
	d.subMu.Unlock()
	if ok {
		sink.Close()
	}
	return map[string]any{"ok": true}, nil
}

// Subscriptions returns the live sinks owned by clientKey, for a
// transport to range over and forward as notifications/resources/updated
// messages (spec §4.12).
func (d *Dispatcher) Subscriptions(clientKey string) map[string]*subscribe.Sink {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	out := make(map[string]*subscribe.Sink, len(d.subs[clientKey]))
	for uri, sink := range d.subs[clientKey] {
		out[uri] = sink
	}
	return out
}
