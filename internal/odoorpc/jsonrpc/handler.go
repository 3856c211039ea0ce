// Package jsonrpc implements the JSON-RPC variant of the Odoo RPC handler
// (spec §4.1): a single POST /jsonrpc endpoint wrapping {service, method,
// args} in Odoo's own JSON-RPC 2.0 envelope (distinct from, but
// structurally identical to, the MCP-facing envelope in
// internal/jsonrpc -- Odoo's dialect is reused here only for its shape,
// not its Go type, to keep the two protocols decoupled).
package jsonrpc

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/odoomcp/gateway/internal/gwerr"
	"github.com/odoomcp/gateway/internal/odoorpc"
)

// Handler implements odoorpc.Handler over Odoo's /jsonrpc endpoint.
type Handler struct {
	endpoint string
	http     *http.Client
	db       string
	secret   string
	uid      int64
	nextID   atomic.Int64
}

// Options configures a new Handler.
type Options struct {
	BaseURL   string
	Database  string
	Timeout   time.Duration
	TLSConfig *tls.Config
}

// New builds a Handler pointed at baseURL (e.g. "https://odoo.example.com").
func New(opts Options) *Handler {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		TLSClientConfig:     opts.TLSConfig,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Handler{
		endpoint: opts.BaseURL + "/jsonrpc",
		http:     &http.Client{Transport: transport, Timeout: timeout},
		db:       opts.Database,
	}
}

type wireRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  wireParams `json:"params"`
	ID      int64  `json:"id"`
}

type wireParams struct {
	Service string `json:"service"`
	Method  string `json:"method"`
	Args    []any  `json:"args"`
}

type wireResponse struct {
	JSONRPC string     `json:"jsonrpc"`
	ID      int64      `json:"id"`
	Result  any        `json:"result,omitempty"`
	Error   *wireError `json:"error,omitempty"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Name    string `json:"name"`
		Message string `json:"message"`
		Arguments []any `json:"arguments"`
		Debug   string `json:"debug"`
	} `json:"data"`
}

func (h *Handler) call(ctx context.Context, service, method string, args []any) (any, error) {
	req := wireRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  wireParams{Service: service, Method: method, Args: args},
		ID:      h.nextID.Add(1),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "encode odoo jsonrpc request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindInternal, err, "build odoo jsonrpc request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := h.http.Do(httpReq)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindNetwork, err, "odoo jsonrpc request failed")
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindNetwork, err, "read odoo jsonrpc response")
	}
	if resp.StatusCode >= 400 {
		return nil, gwerr.Wrap(gwerr.KindNetwork, fmt.Errorf("http %d: %s", resp.StatusCode, raw), "odoo jsonrpc http error")
	}
	var wr wireResponse
	if err := json.Unmarshal(raw, &wr); err != nil {
		return nil, gwerr.Wrap(gwerr.KindProtocol, err, "decode odoo jsonrpc response")
	}
	if wr.Error != nil {
		msg := wr.Error.Data.Message
		if msg == "" {
			msg = wr.Error.Message
		}
		return nil, odoorpc.ClassifyFault(msg)
	}
	return wr.Result, nil
}

func (h *Handler) Authenticate(ctx context.Context, db, user, secret string) (int64, error) {
	res, err := h.call(ctx, "common", "authenticate", []any{db, user, secret, map[string]any{}})
	if err != nil {
		return 0, err
	}
	uid, ok := toInt64(res)
	if !ok || uid == 0 {
		return 0, gwerr.New(gwerr.KindAuth, "authentication rejected by Odoo")
	}
	h.secret = secret
	h.uid = uid
	return uid, nil
}

func (h *Handler) ExecuteKw(ctx context.Context, model, method string, positional []any, named map[string]any) (any, error) {
	args := []any{h.db, currentUID(ctx, h.uid), h.secret, model, method, positional}
	if len(named) > 0 {
		args = append(args, named)
	} else {
		args = append(args, map[string]any{})
	}
	return h.call(ctx, "object", "execute_kw", args)
}

func (h *Handler) Call(ctx context.Context, service, method string, positional []any) (any, error) {
	return h.call(ctx, service, method, positional)
}

func (h *Handler) Close() error {
	h.http.CloseIdleConnections()
	return nil
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case int64:
		return t, true
	case int:
		return int64(t), true
	default:
		return 0, false
	}
}

type uidKey struct{}

// WithUID stashes the effective uid used for ExecuteKw calls in the context.
func WithUID(ctx context.Context, uid int64) context.Context {
	return context.WithValue(ctx, uidKey{}, uid)
}

func currentUID(ctx context.Context, fallback int64) int64 {
	if v, ok := ctx.Value(uidKey{}).(int64); ok {
		return v
	}
	return fallback
}
