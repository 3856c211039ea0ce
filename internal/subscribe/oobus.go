package subscribe

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// OdooBusListener optionally mirrors Odoo's own real-time bus into this
// gateway's Bus, so a write made directly in Odoo's UI (bypassing the
// gateway entirely) still triggers notifications/resources/updated for
// subscribed MCP clients. Grounded on
// original_source/odoo_mcp/core/bus_handler.py's OdooBusHandler:
// reconnect-with-backoff loop, channel resubscription on reconnect, and
// odoo:// channel-name filtering -- translated from Python's asyncio
// websockets client to Go's github.com/gorilla/websocket, the teacher's
// pack's websocket library of choice.
type OdooBusListener struct {
	wsURL string
	log   *slog.Logger

	mu       sync.Mutex
	channels map[string]struct{}

	bus *Bus

	minReconnect time.Duration
	maxReconnect time.Duration
	maxAttempts  int
}

// NewOdooBusListener builds a listener that mirrors channel notifications
// into bus. httpBaseURL is the Odoo base URL (e.g. "http://odoo:8069");
// it is rewritten to a ws:// websocket URL the same way the Python
// original does (`config['odoo_url'].replace('http://', '')`).
func NewOdooBusListener(httpBaseURL string, bus *Bus, log *slog.Logger) *OdooBusListener {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &OdooBusListener{
		wsURL:        toWebsocketURL(httpBaseURL),
		log:          log,
		channels:     map[string]struct{}{},
		bus:          bus,
		minReconnect: 5 * time.Second,
		maxReconnect: 60 * time.Second,
		maxAttempts:  10,
	}
}

func toWebsocketURL(httpBaseURL string) string {
	u, err := url.Parse(httpBaseURL)
	if err != nil {
		return httpBaseURL
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/websocket"
	return u.String()
}

// Watch adds channel (a resource URI) to the set resubscribed on every
// reconnect.
func (l *OdooBusListener) Watch(channel string) {
	l.mu.Lock()
	l.channels[channel] = struct{}{}
	l.mu.Unlock()
}

// Unwatch removes channel.
func (l *OdooBusListener) Unwatch(channel string) {
	l.mu.Lock()
	delete(l.channels, channel)
	l.mu.Unlock()
}

// Run connects and reconnects with exponential backoff until ctx is
// cancelled or the attempt budget is exhausted, mirroring
// bus_handler.py's _run loop.
func (l *OdooBusListener) Run(ctx context.Context) error {
	delay := l.minReconnect
	attempts := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := l.runOnce(ctx); err != nil {
			l.log.WarnContext(ctx, "odoo bus connection lost", "error", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		attempts++
		if attempts >= l.maxAttempts {
			l.log.ErrorContext(ctx, "odoo bus: maximum reconnection attempts reached")
			return nil
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if delay > l.maxReconnect {
			delay = l.maxReconnect
		}
	}
}

func (l *OdooBusListener) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, l.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	l.mu.Lock()
	channels := make([]string, 0, len(l.channels))
	for c := range l.channels {
		channels = append(channels, c)
	}
	l.mu.Unlock()
	for _, c := range channels {
		if err := l.sendSubscribe(conn, c); err != nil {
			l.log.WarnContext(ctx, "odoo bus: resubscribe failed", "channel", c, "error", err)
		}
	}

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		l.handleMessage(ctx, data)
	}
}

type busEnvelope struct {
	Method string `json:"method"`
	Params struct {
		Channel string          `json:"channel"`
		Message json.RawMessage `json:"message"`
	} `json:"params"`
}

func (l *OdooBusListener) handleMessage(ctx context.Context, data []byte) {
	var env busEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		l.log.DebugContext(ctx, "odoo bus: undecodable message", "error", err)
		return
	}
	if env.Method != "notification" || env.Params.Channel == "" {
		return
	}
	if !strings.HasPrefix(env.Params.Channel, "odoo://") {
		return
	}
	l.bus.Publish(ctx, env.Params.Channel)
}

func (l *OdooBusListener) sendSubscribe(conn *websocket.Conn, channel string) error {
	return conn.WriteJSON(map[string]any{
		"jsonrpc": "2.0",
		"method":  "call",
		"params":  map[string]any{"channel": channel, "action": "subscribe"},
	})
}
