package messaging

import (
	"context"
	"testing"
	"time"

	"quiltqc/contexts/quilt-review/consensus-engine/ports"

	"github.com/stretchr/testify/require"
)

func TestBusDeliversToTopicSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBus([]string{"localhost:9092"}, nil)
	received := make(chan ports.EventEnvelope, 1)
	bus.Subscribe(ctx, "block.consensus_reached", "test-cg", func(_ context.Context, event ports.EventEnvelope) error {
		received <- event
		return nil
	})

	require.NoError(t, bus.Publish(ctx, "block.recrop_completed", ports.EventEnvelope{EventID: "other"}))
	require.NoError(t, bus.Publish(ctx, "block.consensus_reached", ports.EventEnvelope{EventID: "evt-1"}))

	select {
	case event := <-received:
		require.Equal(t, "evt-1", event.EventID)
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestBusDropsSubscriberOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := NewBus(nil, nil)
	bus.Subscribe(ctx, "topic", "cg", func(context.Context, ports.EventEnvelope) error { return nil })
	cancel()

	require.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.subscribers["topic"]) == 0
	}, time.Second, 10*time.Millisecond)
}
