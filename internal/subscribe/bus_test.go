package subscribe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubscribePublishDelivers(t *testing.T) {
	bus := NewBus()
	sink := bus.Subscribe("odoo://res.partner/7", 4)
	defer sink.Close()

	bus.Publish(context.Background(), "odoo://res.partner/7")

	select {
	case ev := <-sink.Events():
		require.Equal(t, "odoo://res.partner/7", ev.URI)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishToUnrelatedURIIsNotDelivered(t *testing.T) {
	bus := NewBus()
	sink := bus.Subscribe("odoo://res.partner/7", 4)
	defer sink.Close()

	bus.Publish(context.Background(), "odoo://res.partner/8")

	select {
	case ev := <-sink.Events():
		t.Fatalf("unexpected event delivered: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFullQueueDropsRatherThanBlocks(t *testing.T) {
	bus := NewBus()
	sink := bus.Subscribe("odoo://res.partner/7", 1)
	defer sink.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			bus.Publish(context.Background(), "odoo://res.partner/7")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber queue")
	}
}

func TestCloseRemovesSinkFromBus(t *testing.T) {
	bus := NewBus()
	sink := bus.Subscribe("odoo://res.partner/7", 4)
	require.Equal(t, 1, bus.SubscriberCount("odoo://res.partner/7"))
	sink.Close()
	require.Equal(t, 0, bus.SubscriberCount("odoo://res.partner/7"))
}

func TestDoubleCloseIsSafe(t *testing.T) {
	bus := NewBus()
	sink := bus.Subscribe("odoo://res.partner/7", 4)
	sink.Close()
	require.NotPanics(t, func() { sink.Close() })
}
