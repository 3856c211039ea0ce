package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
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

// fakeHandler is a minimal odoorpc.Handler stand-in, just enough surface
// for the built-in echo tool and a write that fires a subscription event.
type fakeHandler struct{}

func (fakeHandler) Authenticate(ctx context.Context, db, user, secret string) (int64, error) {
	return 7, nil
}

func (fakeHandler) ExecuteKw(ctx context.Context, model, method string, positional []any, named map[string]any) (any, error) {
	switch {
	case model == "ir.model" && method == "search_read":
		return []any{map[string]any{"model": "res.partner"}}, nil
	case model == "res.partner" && method == "fields_get":
		return map[string]any{"name": map[string]any{"type": "char"}}, nil
	case method == "write":
		return true, nil
	}
	return []any{}, nil
}

func (fakeHandler) Call(ctx context.Context, service, method string, positional []any) (any, error) {
	return "9.0", nil
}

func (fakeHandler) Close() error { return nil }

func newTestDispatcher(t *testing.T) *dispatcher.Dispatcher {
	t.Helper()
	p := pool.New(func(ctx context.Context) (odoorpc.Handler, error) {
		return fakeHandler{}, nil
	}, pool.Options{Size: 1})

	mem, err := cache.NewMemory(100)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })

	sessions := session.NewManager(session.NewMemoryStore(), func(ctx context.Context, username, secret string) (int64, error) {
		return 7, nil
	}, time.Minute, 0)
	t.Cleanup(sessions.Close)

	return dispatcher.New(dispatcher.Deps{
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
}

func TestServeEchoesToolCall(t *testing.T) {
	d := newTestDispatcher(t)

	in := &bytes.Buffer{}
	writeLineTo(t, in, "call_tool", map[string]any{
		"name":      "echo",
		"arguments": map[string]any{"message": "hi"},
	}, 1)

	out := &bytes.Buffer{}
	h := NewHandler(d, WithReader(in), WithWriter(out))

	err := h.Serve(context.Background())
	require.NoError(t, err)

	line, err := bufio.NewReader(out).ReadString('\n')
	require.NoError(t, err)

	var resp jsonrpc.Response
	require.NoError(t, json.Unmarshal([]byte(line), &resp))
	require.Nil(t, resp.Error)
	require.Contains(t, string(resp.Result), "hi")
}

func TestServeMalformedLineRepliesParseError(t *testing.T) {
	d := newTestDispatcher(t)

	in := strings.NewReader("not json\n")
	out := &bytes.Buffer{}
	h := NewHandler(d, WithReader(in), WithWriter(out))

	require.NoError(t, h.Serve(context.Background()))

	var resp jsonrpc.Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, jsonrpc.ErrorCodeParseError, resp.Error.Code)
}

func TestServeNotificationProducesNoOutput(t *testing.T) {
	d := newTestDispatcher(t)

	in := &bytes.Buffer{}
	raw, err := json.Marshal(map[string]any{})
	require.NoError(t, err)
	req := jsonrpc.Request{JSONRPCVersion: jsonrpc.ProtocolVersion, Method: "ping", Params: raw}
	line, err := json.Marshal(req)
	require.NoError(t, err)
	in.Write(line)
	in.WriteByte('\n')

	out := &bytes.Buffer{}
	h := NewHandler(d, WithReader(in), WithWriter(out))
	require.NoError(t, h.Serve(context.Background()))
	require.Empty(t, out.Bytes())
}

func TestServeForwardsSubscriptionNotifications(t *testing.T) {
	d := newTestDispatcher(t)

	pr, pw := io.Pipe()
	out := &syncBuffer{}
	h := NewHandler(d, WithReader(pr), WithWriter(out))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		h.Serve(ctx)
		close(done)
	}()

	writeLineTo(t, pw, "subscribe_resource", map[string]any{"uri": "odoo://res.partner/1"}, 1)
	require.Eventually(t, func() bool {
		return len(d.Subscriptions(clientKey)) == 1
	}, time.Second, 10*time.Millisecond)

	writeLineTo(t, pw, "call_tool", map[string]any{
		"name":      "odoo.write",
		"arguments": map[string]any{"model": "res.partner", "record_ids": []any{int64(1)}, "values": map[string]any{"name": "Renamed"}},
	}, 2)

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "notifications/resources/updated")
	}, 2*time.Second, 10*time.Millisecond)

	pw.Close()
	<-done
}

// syncBuffer wraps bytes.Buffer with a mutex since it is written from
// both the request-handling goroutine and the notification pump.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeLineTo(t *testing.T, w io.Writer, method string, params any, id int64) {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	req := jsonrpc.Request{
		JSONRPCVersion: jsonrpc.ProtocolVersion,
		Method:         method,
		Params:         raw,
		ID:             jsonrpc.NewRequestID(id),
	}
	line, err := json.Marshal(req)
	require.NoError(t, err)
	_, err = w.Write(append(line, '\n'))
	require.NoError(t, err)
}
