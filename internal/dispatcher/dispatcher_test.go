package dispatcher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odoomcp/gateway/internal/cache"
	"github.com/odoomcp/gateway/internal/config"
	"github.com/odoomcp/gateway/internal/domain"
	"github.com/odoomcp/gateway/internal/jsonrpc"
	"github.com/odoomcp/gateway/internal/odoorpc"
	"github.com/odoomcp/gateway/internal/pool"
	"github.com/odoomcp/gateway/internal/ratelimit"
	"github.com/odoomcp/gateway/internal/registry"
	"github.com/odoomcp/gateway/internal/security"
	"github.com/odoomcp/gateway/internal/session"
	"github.com/odoomcp/gateway/internal/subscribe"
)

// fakeHandler is an in-memory stand-in for an authenticated Odoo
// connection, exercising just enough execute_kw surface for the
// dispatcher's tests.
type fakeHandler struct {
	partners map[int64]map[string]any
	nextID   int64
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{
		partners: map[int64]map[string]any{
			1: {"id": int64(1), "name": "Acme Corp", "email": "mario@example.com", "company_id": int64(1)},
		},
		nextID: 2,
	}
}

func (f *fakeHandler) Authenticate(ctx context.Context, db, user, secret string) (int64, error) {
	if secret == "" {
		return 0, gwerrAuth()
	}
	return 7, nil
}

func (f *fakeHandler) ExecuteKw(ctx context.Context, model, method string, positional []any, named map[string]any) (any, error) {
	switch model {
	case "res.partner":
		switch method {
		case "fields_get":
			return map[string]any{
				"company_id": map[string]any{"type": "many2one"},
			}, nil
		case "search_read":
			out := []any{}
			for _, p := range f.partners {
				out = append(out, p)
			}
			return out, nil
		case "read":
			ids, _ := positional[0].([]any)
			out := []any{}
			for _, idAny := range ids {
				id := toInt64(idAny)
				if p, ok := f.partners[id]; ok {
					out = append(out, p)
				}
			}
			return out, nil
		case "create":
			values, _ := positional[0].(map[string]any)
			id := f.nextID
			f.nextID++
			rec := map[string]any{"id": id}
			for k, v := range values {
				rec[k] = v
			}
			f.partners[id] = rec
			return id, nil
		case "write":
			ids, _ := positional[0].([]any)
			values, _ := positional[1].(map[string]any)
			for _, idAny := range ids {
				id := toInt64(idAny)
				if rec, ok := f.partners[id]; ok {
					for k, v := range values {
						rec[k] = v
					}
				}
			}
			return true, nil
		case "unlink":
			ids, _ := positional[0].([]any)
			for _, idAny := range ids {
				delete(f.partners, toInt64(idAny))
			}
			return true, nil
		}
	case "ir.model":
		if method == "search_read" {
			return []any{map[string]any{"model": "res.partner"}}, nil
		}
	}
	return nil, nil
}

func (f *fakeHandler) Call(ctx context.Context, service, method string, positional []any) (any, error) {
	return "9.0", nil
}

func (f *fakeHandler) Close() error { return nil }

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func gwerrAuth() error {
	return &authErr{}
}

type authErr struct{}

func (e *authErr) Error() string { return "auth failed" }

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	handler := newFakeHandler()
	p := pool.New(func(ctx context.Context) (odoorpc.Handler, error) {
		return handler, nil
	}, pool.Options{Size: 2})

	mem, err := cache.NewMemory(100)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })

	sessions := session.NewManager(session.NewMemoryStore(), func(ctx context.Context, username, secret string) (int64, error) {
		return handler.Authenticate(ctx, "db", username, secret)
	}, time.Minute, 0)

	return New(Deps{
		Registry:          registry.New(),
		Pool:              p,
		Cache:             mem,
		CacheTTL:          time.Minute,
		Domain:            domain.New(0, nil),
		Masker:            security.NewMasker(true, nil),
		Implicit:          security.NewRegistry(true, []config.ImplicitDomainRule{{Model: "res.partner", InjectCompany: true}}),
		Audit:             security.NewAuditLogger(false, nil),
		Sessions:          sessions,
		RateLimiter:       ratelimit.New(0, 0),
		Bus:               subscribe.NewBus(),
		Credentials:       odoorpc.Credentials{Database: "db", UID: 7, Secret: "s"},
		AllowedCompanyIDs: []int64{1},
		IdempotencyWindow: 16,
	})
}

func callTool(t *testing.T, d *Dispatcher, name string, arguments map[string]any) (json.RawMessage, *jsonrpc.Error) {
	t.Helper()
	params := map[string]any{"name": name, "arguments": arguments}
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	req := &jsonrpc.Request{JSONRPCVersion: jsonrpc.ProtocolVersion, Method: "call_tool", Params: raw, ID: jsonrpc.NewRequestID(int64(1))}
	resp := d.Dispatch(context.Background(), "test-client", req)
	require.NotNil(t, resp)
	return resp.Result, resp.Error
}

func TestEchoRoundTrips(t *testing.T) {
	d := newTestDispatcher(t)
	result, jerr := callTool(t, d, "echo", map[string]any{"message": "hi"})
	require.Nil(t, jerr)
	require.Contains(t, string(result), "hi")
}

func TestCreateAndDestroySession(t *testing.T) {
	d := newTestDispatcher(t)
	result, jerr := callTool(t, d, "create_session", map[string]any{"username": "bob", "api_key": "secret"})
	require.Nil(t, jerr)

	var out struct {
		StructuredContent struct {
			SessionID string `json:"session_id"`
			UID       int64  `json:"uid"`
		} `json:"structuredContent"`
	}
	require.NoError(t, json.Unmarshal(result, &out))
	require.NotEmpty(t, out.StructuredContent.SessionID)
	require.Equal(t, int64(7), out.StructuredContent.UID)

	_, jerr = callTool(t, d, "destroy_session", map[string]any{"session_id": out.StructuredContent.SessionID})
	require.Nil(t, jerr)
}

func TestSearchReadMasksAndInjectsCompanyDomain(t *testing.T) {
	d := newTestDispatcher(t)
	result, jerr := callTool(t, d, "odoo.search_read", map[string]any{
		"model": "res.partner", "domain_json": "[]",
	})
	require.Nil(t, jerr)
	require.Contains(t, string(result), "m***o@example.com")
	require.NotContains(t, string(result), "mario@example.com")
}

func TestCreateThenReadNewRecord(t *testing.T) {
	d := newTestDispatcher(t)
	result, jerr := callTool(t, d, "odoo.create", map[string]any{
		"model": "res.partner", "values": map[string]any{"name": "New Co"},
	})
	require.Nil(t, jerr)
	require.Contains(t, string(result), `"id":2`)

	readResult, jerr := callTool(t, d, "odoo.read", map[string]any{
		"model": "res.partner", "record_ids": []any{2},
	})
	require.Nil(t, jerr)
	require.Contains(t, string(readResult), "New Co")
}

func TestCreateWithOperationIDReplaysCachedResult(t *testing.T) {
	d := newTestDispatcher(t)
	args := map[string]any{"model": "res.partner", "values": map[string]any{"name": "Dup Co"}, "operation_id": "op-1"}
	first, jerr := callTool(t, d, "odoo.create", args)
	require.Nil(t, jerr)
	second, jerr := callTool(t, d, "odoo.create", args)
	require.Nil(t, jerr)
	require.Equal(t, string(first), string(second))
}

func TestUnknownToolReturnsError(t *testing.T) {
	d := newTestDispatcher(t)
	_, jerr := callTool(t, d, "does.not.exist", map[string]any{})
	require.NotNil(t, jerr)
}

func TestMissingRequiredArgumentReturnsValidationError(t *testing.T) {
	d := newTestDispatcher(t)
	_, jerr := callTool(t, d, "odoo.create", map[string]any{"model": "res.partner"})
	require.NotNil(t, jerr)
}

func TestListToolsReturnsCatalog(t *testing.T) {
	d := newTestDispatcher(t)
	req := &jsonrpc.Request{JSONRPCVersion: jsonrpc.ProtocolVersion, Method: "list_tools", ID: jsonrpc.NewRequestID(int64(1))}
	resp := d.Dispatch(context.Background(), "test-client", req)
	require.Nil(t, resp.Error)
	require.Contains(t, string(resp.Result), "echo")
}

func TestSubscribeThenUnsubscribeResource(t *testing.T) {
	d := newTestDispatcher(t)
	subParams, _ := json.Marshal(map[string]any{"uri": "odoo://res.partner/1"})
	req := &jsonrpc.Request{JSONRPCVersion: jsonrpc.ProtocolVersion, Method: "subscribe_resource", Params: subParams, ID: jsonrpc.NewRequestID(int64(1))}
	resp := d.Dispatch(context.Background(), "client-a", req)
	require.Nil(t, resp.Error)
	require.Len(t, d.Subscriptions("client-a"), 1)

	unsubReq := &jsonrpc.Request{JSONRPCVersion: jsonrpc.ProtocolVersion, Method: "unsubscribe_resource", Params: subParams, ID: jsonrpc.NewRequestID(int64(2))}
	resp = d.Dispatch(context.Background(), "client-a", unsubReq)
	require.Nil(t, resp.Error)
	require.Len(t, d.Subscriptions("client-a"), 0)
}

func TestWriteNotifiesSubscribedResource(t *testing.T) {
	d := newTestDispatcher(t)
	subParams, _ := json.Marshal(map[string]any{"uri": "odoo://res.partner/1"})
	d.Dispatch(context.Background(), "client-a", &jsonrpc.Request{
		JSONRPCVersion: jsonrpc.ProtocolVersion, Method: "subscribe_resource", Params: subParams, ID: jsonrpc.NewRequestID(int64(1)),
	})
	sink := d.Subscriptions("client-a")["odoo://res.partner/1"]

	_, jerr := callTool(t, d, "odoo.write", map[string]any{
		"model": "res.partner", "record_ids": []any{int64(1)}, "values": map[string]any{"name": "Renamed"},
	})
	require.Nil(t, jerr)

	select {
	case ev := <-sink.Events():
		require.Equal(t, "odoo://res.partner/1", ev.URI)
	case <-time.After(time.Second):
		t.Fatal("expected a resource-updated notification")
	}
}

func TestReadResourceRecordTemplate(t *testing.T) {
	d := newTestDispatcher(t)
	req := &jsonrpc.Request{JSONRPCVersion: jsonrpc.ProtocolVersion, Method: "read_resource",
		Params: mustJSON(t, map[string]any{"uri": "odoo://res.partner/1"}), ID: jsonrpc.NewRequestID(int64(1))}
	resp := d.Dispatch(context.Background(), "test-client", req)
	require.Nil(t, resp.Error)
	require.Contains(t, string(resp.Result), "Acme Corp")
}

func TestPingReturnsEmptyResult(t *testing.T) {
	d := newTestDispatcher(t)
	req := &jsonrpc.Request{JSONRPCVersion: jsonrpc.ProtocolVersion, Method: "ping", ID: jsonrpc.NewRequestID(int64(1))}
	resp := d.Dispatch(context.Background(), "test-client", req)
	require.Nil(t, resp.Error)
}

func TestNotificationProducesNoResponse(t *testing.T) {
	d := newTestDispatcher(t)
	req := &jsonrpc.Request{JSONRPCVersion: jsonrpc.ProtocolVersion, Method: "ping"}
	resp := d.Dispatch(context.Background(), "test-client", req)
	require.Nil(t, resp)
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
