// Package odoorpc defines the common contract implemented by the two Odoo
// RPC protocol variants (spec §4.1): XML-RPC (internal/odoorpc/xmlrpc) and
// JSON-RPC (internal/odoorpc/jsonrpc). The connection pool (internal/pool)
// only ever talks to this interface, never to a concrete variant, so it can
// build/replace handlers uniformly regardless of the configured protocol.
package odoorpc

import "context"

// Handler is one authenticated (or authenticatable) connection to an Odoo
// instance, speaking either XML-RPC or JSON-RPC on the wire.
type Handler interface {
	// Authenticate exchanges credentials for a numeric uid via Odoo's
	// "common" service. Returns a *gwerr.Error of KindAuth on failure.
	Authenticate(ctx context.Context, db, user, secret string) (uid int64, err error)

	// ExecuteKw invokes object.execute_kw(db, uid, secret, model, method,
	// positional, named). Faults are normalized per spec §4.1.
	ExecuteKw(ctx context.Context, model, method string, positional []any, named map[string]any) (any, error)

	// Call is the generic fallthrough for non-execute_kw service methods
	// (e.g. common.version for health probes).
	Call(ctx context.Context, service, method string, positional []any) (any, error)

	// Close releases any resources (idle HTTP connections, worker pool)
	// held by this handler.
	Close() error
}

// Credentials bundles the wire identity used for ExecuteKw calls. The
// gateway always uses its own global uid/secret on the wire (spec §4.3
// caveat and §9's resolved Open Question) -- a session id authorizes a
// call but never changes Credentials.
type Credentials struct {
	Database string
	UID      int64
	Secret   string
}
