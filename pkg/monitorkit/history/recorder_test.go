package history_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/monitorkit/pkg/monitorkit/event"
	"github.com/randalmurphal/monitorkit/pkg/monitorkit/history"
)

func TestRecorder_AppendsLifecycleEvents(t *testing.T) {
	bus := event.NewBus(event.DefaultBusConfig)
	defer bus.Close()

	store := history.NewMemoryStore()
	rec := history.NewRecorder(store, bus.Subscribe())
	rec.Start()

	bus.Publish(event.New(event.TypeThreadRegistered).
		WithThread("thr-1").
		WithField("name", "worker"))
	bus.Publish(event.New(event.TypeThreadState).
		WithThread("thr-1").
		WithMonitor("mon-1"))

	assert.Eventually(t, func() bool {
		return store.Len() == 2
	}, time.Second, 5*time.Millisecond)

	rec.Stop()

	records, err := store.List(history.KindLifecycle, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first: the state change, then the registration.
	assert.Equal(t, "mon-1", records[0].MonitorID)
	assert.Equal(t, "thr-1", records[1].ThreadID)

	var detail struct {
		Type   string         `json:"type"`
		Fields map[string]any `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(records[1].Detail, &detail))
	assert.Equal(t, event.TypeThreadRegistered, detail.Type)
	assert.Equal(t, "worker", detail.Fields["name"])
}

func TestRecorder_SkipsDeadlockEvents(t *testing.T) {
	bus := event.NewBus(event.DefaultBusConfig)
	defer bus.Close()

	store := history.NewMemoryStore()
	rec := history.NewRecorder(store, bus.Subscribe())
	rec.Start()

	// The watcher writes deadlock records itself; the recorder must not
	// duplicate them.
	bus.Publish(event.New(event.TypeDeadlockDetected).WithMonitor("mon-1"))
	bus.Publish(event.New(event.TypeThreadDeregistered).WithThread("thr-1"))

	assert.Eventually(t, func() bool {
		return store.Len() == 1
	}, time.Second, 5*time.Millisecond)

	rec.Stop()

	records, err := store.List("", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "thr-1", records[0].ThreadID)
}

func TestRecorder_StopIsIdempotent(t *testing.T) {
	bus := event.NewBus(event.DefaultBusConfig)
	defer bus.Close()

	rec := history.NewRecorder(history.NewMemoryStore(), bus.Subscribe())
	rec.Start()
	rec.Stop()
	rec.Stop()
}
