// Package subscribe implements the resource-update subscription bus of
// spec §4.12. It generalizes the teacher's broker/memory channel-based
// namespace/subscriber map (there: namespace -> subscribers; here:
// resource URI -> subscriber sinks) and its drop-on-full-channel
// backpressure policy, since a slow SSE client must never block a writer.
package subscribe

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/odoomcp/gateway/internal/mcp"
)

// Event is one notifications/resources/updated occurrence.
type Event struct {
	ID  string
	URI string
}

// Sink is a subscriber's delivery channel.
type Sink struct {
	id     string
	uri    string
	ch     chan Event
	bus    *Bus
	closed bool
	mu     sync.Mutex
}

// Events returns the channel to range/select over.
func (s *Sink) Events() <-chan Event { return s.ch }

// Close unsubscribes and releases the sink, mirroring the teacher's
// subscription.Close (broker/memory/memory.go) removing itself from the
// namespace's subscriber set exactly once.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.bus.remove(s)
	close(s.ch)
}

// Bus fans notifications/resources/updated events out to every sink
// subscribed to a given resource URI. Queues are bounded per sink; a full
// queue drops the event for that sink rather than blocking the publisher
// (spec §4.12's sse_queue_maxsize note), same tradeoff the teacher's
// in-memory broker makes with its buffered channel + non-blocking send.
type Bus struct {
	mu    sync.RWMutex
	sinks map[string]map[*Sink]struct{} // uri -> sinks
}

// NewBus builds an empty Bus.
func NewBus() *Bus {
	return &Bus{sinks: make(map[string]map[*Sink]struct{})}
}

// Subscribe registers a new sink for uri with a bounded queue of size
// queueSize.
func (b *Bus) Subscribe(uri string, queueSize int) *Sink {
	if queueSize <= 0 {
		queueSize = 64
	}
	s := &Sink{id: uuid.NewString(), uri: uri, ch: make(chan Event, queueSize), bus: b}
	b.mu.Lock()
	set, ok := b.sinks[uri]
	if !ok {
		set = make(map[*Sink]struct{})
		b.sinks[uri] = set
	}
	set[s] = struct{}{}
	b.mu.Unlock()
	return s
}

func (b *Bus) remove(s *Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.sinks[s.uri]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(b.sinks, s.uri)
	}
}

// Publish delivers ev to every sink subscribed to ev.URI, dropping it for
// any sink whose queue is currently full.
func (b *Bus) Publish(ctx context.Context, uri string) Event {
	ev := Event{ID: uuid.NewString(), URI: uri}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.sinks[uri] {
		select {
		case s.ch <- ev:
		case <-ctx.Done():
			return ev
		default:
		}
	}
	return ev
}

// SubscriberCount reports how many sinks currently watch uri, used by
// tests and health reporting.
func (b *Bus) SubscriberCount(uri string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sinks[uri])
}

// NotificationParams builds the notifications/resources/updated params
// payload for ev (spec §4.12).
func NotificationParams(ev Event) mcp.ResourceUpdatedParams {
	return mcp.ResourceUpdatedParams{URI: ev.URI}
}
