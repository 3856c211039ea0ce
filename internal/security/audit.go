package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/odoomcp/gateway/internal/gwerr"
)

// AuditLogger emits the structured audit record spec §4.7 requires for
// every dispatch, following the teacher's log/slog idiom of a
// component-scoped logger passed in by the caller rather than a package
// global.
type AuditLogger struct {
	enabled bool
	log     *slog.Logger
}

// NewAuditLogger builds an AuditLogger. A nil logger falls back to a
// discard handler.
func NewAuditLogger(enabled bool, logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &AuditLogger{enabled: enabled, log: logger}
}

// Success records a completed dispatch.
func (a *AuditLogger) Success(ctx context.Context, client, tool, model, method string, args any, resultSummary string, duration time.Duration) {
	if !a.enabled {
		return
	}
	a.log.InfoContext(ctx, "dispatch",
		"client", client,
		"tool", tool,
		"model", model,
		"method", method,
		"arg_digest", digest(args),
		"result_summary", resultSummary,
		"duration_ms", duration.Milliseconds(),
	)
}

// Failure records a failed dispatch, including the error's kind/code.
func (a *AuditLogger) Failure(ctx context.Context, client, tool, model, method string, args any, err error, duration time.Duration) {
	if !a.enabled {
		return
	}
	attrs := []any{
		"client", client,
		"tool", tool,
		"model", model,
		"method", method,
		"arg_digest", digest(args),
		"duration_ms", duration.Milliseconds(),
		"error", err.Error(),
	}
	if ge, ok := gwerr.As(err); ok {
		attrs = append(attrs, "error_kind", string(ge.Kind), "error_code", int(ge.Code()))
	}
	a.log.InfoContext(ctx, "dispatch_failed", attrs...)
}

// digest returns a stable short fingerprint of args, never the raw
// values, so the audit trail never leaks PII/secrets into logs.
func digest(args any) string {
	b, err := json.Marshal(args)
	if err != nil {
		return "unhashable"
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}
