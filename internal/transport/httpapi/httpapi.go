// Package httpapi implements the HTTP-family transports of spec §4.11:
// classic request/response, chunked streamable HTTP, and Server-Sent
// Events, plus a health endpoint. It is grounded on the teacher's
// streaminghttp.StreamingHTTPHandler (streaminghttp/handler.go): content
// negotiation via github.com/elnormous/contenttype, an Mcp-Session-Id
// header identifying the caller, and a mutex-guarded flush-on-write
// wrapper (lockedWriteFlusher there, flushWriter here) so concurrent
// notification pushes never interleave partial SSE frames.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/elnormous/contenttype"

	"github.com/odoomcp/gateway/internal/dispatcher"
	"github.com/odoomcp/gateway/internal/jsonrpc"
	"github.com/odoomcp/gateway/internal/pool"
	"github.com/odoomcp/gateway/internal/subscribe"
)

const mcpSessionIDHeader = "Mcp-Session-Id"

var (
	jsonMediaType        = contenttype.NewMediaType("application/json")
	eventStreamMediaType = contenttype.NewMediaType("text/event-stream")
)

// Server serves the MCP HTTP-family transports over one Dispatcher.
type Server struct {
	disp           *dispatcher.Dispatcher
	pool           *pool.Pool
	guard          Guard
	allowedOrigins []string
	streamable     bool
	log            *slog.Logger
	mux            *http.ServeMux
}

// New builds a Server. streamable selects whether POST /mcp replies with
// one chunked response per submitted request (HTTP_STREAMABLE=true) or a
// single classic JSON body. guard may be nil (auth disabled) or a
// (*BearerGuard)(nil)/(*JWTGuard)(nil) held in the interface -- both
// Check implementations are nil-receiver-safe.
func New(disp *dispatcher.Dispatcher, p *pool.Pool, guard Guard, allowedOrigins []string, streamable bool, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{disp: disp, pool: p, guard: guard, allowedOrigins: allowedOrigins, streamable: streamable, log: log}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /mcp", s.handleMCP)
	mux.HandleFunc("GET /events", s.handleSSE)
	mux.HandleFunc("GET /sse", s.handleSSE)
	mux.HandleFunc("GET /health", s.handleHealth)
	s.mux = mux
	return s
}

// ServeHTTP implements http.Handler, applying CORS and the bearer guard
// ahead of routing (spec §4.11: allowed_origins is exact-match unless the
// list contains "*").
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.applyCORS(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.URL.Path != "/health" && s.guard != nil {
		if err := s.guard.Check(r); err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="odoo-mcp-gateway"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) applyCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.allowedOrigins) == 0 {
		return
	}
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			break
		}
		if allowed == origin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			break
		}
	}
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+mcpSessionIDHeader)
}

// handleMCP serves the classic and streamable-HTTP variants: one JSON-RPC
// request or a JSON array of requests in the body, one response per
// request written back either as a single JSON object or, when streaming
// is negotiated, as newline-delimited JSON chunks flushed as they complete
// (spec §4.11: "one logical response per chunk").
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	reqs, batch, err := decodeRequests(body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed JSON-RPC payload")
		return
	}

	clientKey := clientKeyFor(r)
	wantsStream := s.streamable
	if _, _, err := contenttype.GetAcceptableMediaType(r, []contenttype.MediaType{eventStreamMediaType}); err == nil {
		wantsStream = true
	}

	if wantsStream {
		s.streamResponses(w, r.Context(), clientKey, reqs)
		return
	}

	w.Header().Set("Content-Type", jsonMediaType.String())
	responses := make([]*jsonrpc.Response, 0, len(reqs))
	for _, req := range reqs {
		if resp := s.disp.Dispatch(r.Context(), clientKey, req); resp != nil {
			responses = append(responses, resp)
		}
	}
	w.WriteHeader(http.StatusOK)
	if !batch {
		if len(responses) == 0 {
			return
		}
		_ = json.NewEncoder(w).Encode(responses[0])
		return
	}
	_ = json.NewEncoder(w).Encode(responses)
}

func (s *Server) streamResponses(w http.ResponseWriter, ctx context.Context, clientKey string, reqs []*jsonrpc.Request) {
	flusher, ok := w.(http.Flusher)
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.Header().Set("Transfer-Encoding", "chunked")
	w.WriteHeader(http.StatusOK)
	fw := &flushWriter{w: w, flusher: flusher, canFlush: ok}
	enc := json.NewEncoder(fw)
	for _, req := range reqs {
		resp := s.disp.Dispatch(ctx, clientKey, req)
		if resp == nil {
			continue
		}
		if err := enc.Encode(resp); err != nil {
			s.log.Error("httpapi: streamed encode failed", "error", err)
			return
		}
	}
}

// handleSSE opens a long-lived text/event-stream connection and forwards
// every notification the caller's session is subscribed to. Inbound calls
// still go through POST /mcp; this is a push-only channel (spec §4.11).
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	clientKey := clientKeyFor(r)
	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	watched := map[string]context.CancelFunc{}
	events := make(chan subscribe.Event, 64)
	defer func() {
		for _, cancel := range watched {
			cancel()
		}
	}()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		for uri, sink := range s.disp.Subscriptions(clientKey) {
			if _, seen := watched[uri]; seen {
				continue
			}
			sinkCtx, cancel := context.WithCancel(ctx)
			watched[uri] = cancel
			go forwardSink(sinkCtx, sink, events)
		}
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			payload, _ := json.Marshal(subscribe.NotificationParams(ev))
			_, _ = w.Write([]byte("event: notifications/resources/updated\ndata: " + string(payload) + "\n\n"))
			flusher.Flush()
		case <-ticker.C:
		}
	}
}

func forwardSink(ctx context.Context, sink *subscribe.Sink, out chan<- subscribe.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sink.Events():
			if !ok {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// handleHealth reports pool capacity per spec §4.11: 200 when at least one
// connection is healthy, 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.pool.Stats()
	body := map[string]any{
		"ok": stats.Healthy > 0,
		"pool": map[string]any{
			"size":    stats.Size,
			"idle":    stats.Idle,
			"in_use":  stats.InUse,
			"healthy": stats.Healthy,
		},
	}
	w.Header().Set("Content-Type", jsonMediaType.String())
	if stats.Healthy == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(body)
}

func clientKeyFor(r *http.Request) string {
	if sid := r.Header.Get(mcpSessionIDHeader); sid != "" {
		return sid
	}
	return r.RemoteAddr
}

func decodeRequests(body []byte) ([]*jsonrpc.Request, bool, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var batch []*jsonrpc.Request
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, true, err
		}
		return batch, true, nil
	}
	var single jsonrpc.Request
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, false, err
	}
	return []*jsonrpc.Request{&single}, false, nil
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// flushWriter flushes after every write when the underlying ResponseWriter
// supports it, so each streamed JSON-RPC response reaches the client as
// its own chunk instead of buffering behind Go's default chunk size.
type flushWriter struct {
	w        io.Writer
	flusher  http.Flusher
	canFlush bool
	mu       sync.Mutex
}

func (f *flushWriter) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.w.Write(p)
	if f.canFlush {
		f.flusher.Flush()
	}
	return n, err
}
