package xmlrpc

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/odoomcp/gateway/internal/gwerr"
	"github.com/odoomcp/gateway/internal/odoorpc"
)

// Handler implements odoorpc.Handler over Odoo's classic XML-RPC endpoints,
// /xmlrpc/2/common and /xmlrpc/2/object.
type Handler struct {
	common *Client
	object *Client
	secret string
	uid    int64
	db     string
}

// Options configures a new Handler.
type Options struct {
	BaseURL     string
	Database    string
	Timeout     int64 // seconds
	TLSConfig   *tls.Config
	WorkerCount int
}

// New builds a Handler pointed at baseURL (e.g. "https://odoo.example.com").
func New(opts Options) *Handler {
	co := ClientOptions{TLSConfig: opts.TLSConfig, WorkerCount: opts.WorkerCount}
	return &Handler{
		common: NewClient(opts.BaseURL+"/xmlrpc/2/common", co),
		object: NewClient(opts.BaseURL+"/xmlrpc/2/object", co),
		db:     opts.Database,
	}
}

func (h *Handler) Authenticate(ctx context.Context, db, user, secret string) (int64, error) {
	res, err := h.common.Call(ctx, "authenticate", []any{db, user, secret, map[string]any{}})
	if err != nil {
		return 0, classify(err)
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
	res, err := h.object.Call(ctx, "execute_kw", args)
	if err != nil {
		return nil, classify(err)
	}
	return res, nil
}

func (h *Handler) Call(ctx context.Context, service, method string, positional []any) (any, error) {
	var c *Client
	switch service {
	case "common":
		c = h.common
	case "object":
		c = h.object
	default:
		return nil, gwerr.New(gwerr.KindProtocol, fmt.Sprintf("unknown service %q", service))
	}
	res, err := c.Call(ctx, method, positional)
	if err != nil {
		return nil, classify(err)
	}
	return res, nil
}

func (h *Handler) Close() error {
	h.common.Close()
	h.object.Close()
	return nil
}

func classify(err error) error {
	if f, ok := err.(*Fault); ok {
		return odoorpc.ClassifyFault(f.Message)
	}
	return gwerr.Wrap(gwerr.KindNetwork, err, "xmlrpc call failed")
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	case bool:
		return 0, false
	default:
		return 0, false
	}
}

type uidKey struct{}

// WithUID stashes the effective uid used for ExecuteKw calls in the context.
// The pool always uses the gateway's configured global uid unless a caller
// explicitly threads a different one through (spec §4.3 caveat).
func WithUID(ctx context.Context, uid int64) context.Context {
	return context.WithValue(ctx, uidKey{}, uid)
}

func currentUID(ctx context.Context, fallback int64) int64 {
	if v, ok := ctx.Value(uidKey{}).(int64); ok {
		return v
	}
	return fallback
}
