package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odoomcp/gateway/internal/cache"
	"github.com/odoomcp/gateway/internal/config"
	"github.com/odoomcp/gateway/internal/dispatcher"
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

type fakeHandler struct{}

func (fakeHandler) Authenticate(ctx context.Context, db, user, secret string) (int64, error) {
	return 7, nil
}

func (fakeHandler) ExecuteKw(ctx context.Context, model, method string, positional []any, named map[string]any) (any, error) {
	switch {
	case model == "ir.model" && method == "search_read":
		return []any{map[string]any{"model": "res.partner"}}, nil
	case method == "write":
		return true, nil
	}
	return []any{}, nil
}

func (fakeHandler) Call(ctx context.Context, service, method string, positional []any) (any, error) {
	return "9.0", nil
}

func (fakeHandler) Close() error { return nil }

func newTestServer(t *testing.T, guard Guard, streamable bool) (*Server, *dispatcher.Dispatcher) {
	t.Helper()
	p := pool.New(func(ctx context.Context) (odoorpc.Handler, error) {
		return fakeHandler{}, nil
	}, pool.Options{Size: 1})
	t.Cleanup(p.Close)

	mem, err := cache.NewMemory(100)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })

	sessions := session.NewManager(session.NewMemoryStore(), func(ctx context.Context, username, secret string) (int64, error) {
		return 7, nil
	}, time.Minute, 0)
	t.Cleanup(sessions.Close)

	disp := dispatcher.New(dispatcher.Deps{
		Registry:          registry.New(),
		Pool:              p,
		Cache:             mem,
		CacheTTL:          time.Minute,
		Domain:            domain.New(0, nil),
		Masker:            security.NewMasker(false, nil),
		Implicit:          security.NewRegistry(false, []config.ImplicitDomainRule{}),
		Audit:             security.NewAuditLogger(false, nil),
		Sessions:          sessions,
		RateLimiter:       ratelimit.New(0, 0),
		Bus:               subscribe.NewBus(),
		Credentials:       odoorpc.Credentials{Database: "db", UID: 7, Secret: "s"},
		IdempotencyWindow: 16,
	})

	// Force the pool's first connection so /health reports healthy.
	_, release, err := p.Acquire(context.Background())
	require.NoError(t, err)
	release(true)

	srv := New(disp, p, guard, nil, streamable, nil)
	return srv, disp
}

func rpcRequest(method string, params any, id int64) *jsonrpc.Request {
	raw, _ := json.Marshal(params)
	return &jsonrpc.Request{
		JSONRPCVersion: jsonrpc.ProtocolVersion,
		Method:         method,
		Params:         raw,
		ID:             jsonrpc.NewRequestID(id),
	}
}

func TestHandleMCPClassicSingleRequest(t *testing.T) {
	srv, _ := newTestServer(t, nil, false)
	body, err := json.Marshal(rpcRequest("call_tool", map[string]any{
		"name":      "echo",
		"arguments": map[string]any{"message": "hi"},
	}, 1))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp jsonrpc.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp.Error)
	require.Contains(t, string(resp.Result), "hi")
}

func TestHandleMCPBatchRequest(t *testing.T) {
	srv, _ := newTestServer(t, nil, false)
	batch := []*jsonrpc.Request{
		rpcRequest("ping", struct{}{}, 1),
		rpcRequest("list_tools", struct{}{}, 2),
	}
	body, err := json.Marshal(batch)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resps []jsonrpc.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resps))
	require.Len(t, resps, 2)
}

func TestHandleMCPStreamableWritesOneChunkPerResponse(t *testing.T) {
	srv, _ := newTestServer(t, nil, true)
	batch := []*jsonrpc.Request{
		rpcRequest("ping", struct{}{}, 1),
		rpcRequest("list_tools", struct{}{}, 2),
	}
	body, err := json.Marshal(batch)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	count := 0
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}
		var resp jsonrpc.Response
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		count++
	}
	require.Equal(t, 2, count)
}

func TestHandleMCPRejectsUnauthorized(t *testing.T) {
	guard, err := NewBearerGuard("secret")
	require.NoError(t, err)
	srv, _ := newTestServer(t, guard, false)

	body, _ := json.Marshal(rpcRequest("ping", struct{}{}, 1))
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req2.Header.Set("Authorization", "Bearer secret")
	rec2 := httptest.NewRecorder()
	srv.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
}

func TestHandleHealthReportsPoolStatus(t *testing.T) {
	srv, _ := newTestServer(t, nil, false)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, true, body["ok"])
}

func TestHandleHealthSkipsAuth(t *testing.T) {
	guard, err := NewBearerGuard("secret")
	require.NoError(t, err)
	srv, _ := newTestServer(t, guard, false)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestClientKeyForPrefersSessionHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	require.Equal(t, "10.0.0.1:1234", clientKeyFor(req))

	req.Header.Set(mcpSessionIDHeader, "session-xyz")
	require.Equal(t, "session-xyz", clientKeyFor(req))
}
