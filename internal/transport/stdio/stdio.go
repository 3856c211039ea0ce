// Package stdio implements the newline-delimited JSON-RPC transport of
// spec §4.11: one JSON value per line on stdin, one per line on stdout,
// all logging routed to stderr so it never corrupts the wire. It is
// grounded on the teacher's stdio.Handler (stdio/handler.go, stdio/options.go)
// -- functional options over reader/writer/logger -- generalized here to
// drive a dispatcher.Dispatcher instead of an mcpservice.ServerCapabilities,
// and to fan out subscription events as unsolicited notifications the way
// the teacher's outbound_dispatcher pushes server-initiated messages.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/odoomcp/gateway/internal/dispatcher"
	"github.com/odoomcp/gateway/internal/jsonrpc"
	"github.com/odoomcp/gateway/internal/subscribe"
)

// subscriptionPollInterval bounds how quickly a newly created subscription
// starts being forwarded; the dispatcher has no push signal for "a sink
// was added", so the stdio pump re-scans on this cadence.
const subscriptionPollInterval = 200 * time.Millisecond

// clientKey is fixed: a stdio Handler serves exactly one peer for the life
// of the process, so there is nothing to key subscriptions or rate limits
// by beyond a constant.
const clientKey = "stdio"

// Option customizes a Handler, mirroring the teacher's stdio.Option shape.
type Option func(*Handler)

// WithReader overrides the input stream (default os.Stdin).
func WithReader(r io.Reader) Option {
	return func(h *Handler) {
		if r != nil {
			h.r = r
		}
	}
}

// WithWriter overrides the output stream (default os.Stdout).
func WithWriter(w io.Writer) Option {
	return func(h *Handler) {
		if w != nil {
			h.w = w
		}
	}
}

// WithLogger overrides the logger (default discards).
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// Handler is a single-connection stdio transport over a Dispatcher.
type Handler struct {
	disp *dispatcher.Dispatcher
	r    io.Reader
	w    io.Writer
	log  *slog.Logger

	writeMu sync.Mutex
}

// NewHandler builds a stdio Handler with defaults and applies opts.
func NewHandler(disp *dispatcher.Dispatcher, opts ...Option) *Handler {
	h := &Handler{
		disp: disp,
		r:    os.Stdin,
		w:    os.Stdout,
		log:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serve runs the read loop until EOF on the reader or ctx is canceled. It
// also drains any resources the peer subscribes to, forwarding each
// update as an unsolicited notifications/resources/updated message
// (spec §4.12). Safe to call at most once per Handler.
func (h *Handler) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer h.disp.CleanupClient(clientKey)

	go h.pumpNotifications(ctx)

	scanner := bufio.NewScanner(h.r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		h.handleLine(ctx, line)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return nil
}

func (h *Handler) handleLine(ctx context.Context, line []byte) {
	var req jsonrpc.Request
	if err := json.Unmarshal(line, &req); err != nil {
		h.log.Error("stdio: malformed json-rpc line", "error", err)
		resp := jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, "invalid JSON", "protocol", nil)
		h.writeMessage(resp)
		return
	}
	resp := h.disp.Dispatch(ctx, clientKey, &req)
	if resp == nil {
		return
	}
	h.writeMessage(resp)
}

// pumpNotifications ranges over every sink the client currently owns and
// forwards its events as unsolicited notifications, re-polling the
// subscription set periodically since it can change while a call is
// in flight (spec §4.12: subscriptions are joint bus/transport property).
func (h *Handler) pumpNotifications(ctx context.Context) {
	watched := map[string]context.CancelFunc{}
	defer func() {
		for _, cancel := range watched {
			cancel()
		}
	}()
	ticker := time.NewTicker(subscriptionPollInterval)
	defer ticker.Stop()
	for {
		for uri, sink := range h.disp.Subscriptions(clientKey) {
			if _, ok := watched[uri]; ok {
				continue
			}
			sinkCtx, cancel := context.WithCancel(ctx)
			watched[uri] = cancel
			go h.forward(sinkCtx, sink)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *Handler) forward(ctx context.Context, sink *subscribe.Sink) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sink.Events():
			if !ok {
				return
			}
			params := subscribe.NotificationParams(ev)
			raw, err := json.Marshal(params)
			if err != nil {
				continue
			}
			h.writeMessage(&jsonrpc.Request{
				JSONRPCVersion: jsonrpc.ProtocolVersion,
				Method:         "notifications/resources/updated",
				Params:         raw,
			})
		}
	}
}

func (h *Handler) writeMessage(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.Error("stdio: marshal outbound message", "error", err)
		return
	}
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if _, err := h.w.Write(append(b, '\n')); err != nil {
		h.log.Error("stdio: write failed", "error", err)
	}
}

