package eventbus_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/flowguard/pkg/channels/gochannel"
	"github.com/dukex/flowguard/pkg/eventbus"
	"github.com/dukex/flowguard/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, slog.Default())
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_PublishSubscribe(t *testing.T) {
	bus := newBus(t)
	received := make(chan *events.WorkflowPatched, 1)

	require.NoError(t, bus.Handle(events.WorkflowPatchedEvent, func(_ context.Context, event any) error {
		patched, ok := event.(*events.WorkflowPatched)
		if !ok {
			return errors.New("unexpected event type")
		}

		received <- patched

		return nil
	}))

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	// Events without a handler are acked and dropped.
	require.NoError(t, bus.Publish(ctx, "wf-1", events.NewWorkflowDeleted("wf-1")))

	sent := events.NewWorkflowPatched("wf-1", 1, 0, []string{"updateNode"}, true)
	require.NoError(t, bus.Publish(ctx, "wf-1", sent))

	select {
	case got := <-received:
		assert.Equal(t, sent.ID, got.ID)
		assert.Equal(t, "wf-1", got.WorkflowID)
		assert.Equal(t, []string{"updateNode"}, got.Operations)
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	bus := newBus(t)

	a, b := bus.GenerateID(), bus.GenerateID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
