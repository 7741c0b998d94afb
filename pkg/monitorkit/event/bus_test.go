package event_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/monitorkit/pkg/monitorkit/event"
)

func TestNewEvent(t *testing.T) {
	evt := event.New(event.TypeThreadRegistered).
		WithThread("thr-1").
		WithMonitor("mon-1").
		WithField("daemon", true)

	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, event.TypeThreadRegistered, evt.Type)
	assert.Equal(t, "thr-1", evt.ThreadID)
	assert.Equal(t, "mon-1", evt.MonitorID)
	assert.Equal(t, true, evt.Fields["daemon"])
	assert.NotZero(t, evt.Timestamp)
}

func TestEvent_WithFieldDoesNotShareMaps(t *testing.T) {
	base := event.New(event.TypeThreadState).WithField("from", "runnable")
	derived := base.WithField("to", "waiting")

	assert.NotContains(t, base.Fields, "to")
	assert.Equal(t, "waiting", derived.Fields["to"])
}

func TestBus_TypeFiltering(t *testing.T) {
	bus := event.NewBus(event.DefaultBusConfig)
	defer bus.Close()

	deadlocks := bus.Subscribe(event.TypeDeadlockDetected)
	everything := bus.Subscribe()

	bus.Publish(event.New(event.TypeThreadRegistered))
	bus.Publish(event.New(event.TypeDeadlockDetected))

	recv := func(sub *event.Subscription) event.Event {
		select {
		case evt := <-sub.C:
			return evt
		case <-time.After(time.Second):
			t.Fatal("no event delivered")
			return event.Event{}
		}
	}

	assert.Equal(t, event.TypeDeadlockDetected, recv(deadlocks).Type)
	assert.Equal(t, event.TypeThreadRegistered, recv(everything).Type)
	assert.Equal(t, event.TypeDeadlockDetected, recv(everything).Type)

	select {
	case evt := <-deadlocks.C:
		t.Fatalf("filtered subscription got %s", evt.Type)
	default:
	}
}

func TestBus_PublishNeverBlocks(t *testing.T) {
	var dropped int
	bus := event.NewBus(event.BusConfig{
		BufferSize: 1,
		OnDrop:     func(event.Event, string) { dropped++ },
	})
	defer bus.Close()

	sub := bus.Subscribe()
	require.NotNil(t, sub)

	// Nobody is draining; the second publish must drop, not block.
	bus.Publish(event.New(event.TypeThreadState))
	bus.Publish(event.New(event.TypeThreadState))

	assert.Equal(t, 1, dropped)
	assert.Len(t, sub.C, 1)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := event.NewBus(event.DefaultBusConfig)
	defer bus.Close()

	sub := bus.Subscribe()
	sub.Unsubscribe()
	// Idempotent, and the channel is closed.
	sub.Unsubscribe()

	_, open := <-sub.C
	assert.False(t, open)

	// Publishing after unsubscribe is a no-op.
	bus.Publish(event.New(event.TypeThreadState))
}

func TestBus_Close(t *testing.T) {
	bus := event.NewBus(event.DefaultBusConfig)
	sub := bus.Subscribe()

	bus.Close()
	bus.Close() // idempotent

	_, open := <-sub.C
	assert.False(t, open)

	assert.Nil(t, bus.Subscribe(), "closed bus accepts no subscriptions")
	bus.Publish(event.New(event.TypeThreadState)) // no panic
}
