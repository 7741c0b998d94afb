// Package event distributes monitorkit lifecycle and diagnostic events to
// monitoring subscribers.
//
// The core publishes events for thread registration and deregistration,
// thread state transitions, daemon cancellation, and deadlock reports.
// Delivery is fan-out over buffered channels; the core never blocks on a
// slow subscriber (events are dropped instead, with an OnDrop hook for
// accounting).
package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types published by the core.
const (
	TypeThreadRegistered   = "thread.registered"
	TypeThreadDeregistered = "thread.deregistered"
	TypeThreadState        = "thread.state"
	TypeDaemonCancelled    = "daemon.cancelled"
	TypeDeadlockDetected   = "deadlock.detected"
)

// Event is a single monitoring event. Events are immutable once published.
type Event struct {
	// ID uniquely identifies this event.
	ID string `json:"id"`

	// Type is one of the Type* constants.
	Type string `json:"type"`

	// ThreadID is the thread this event concerns, if any.
	ThreadID string `json:"thread_id,omitempty"`

	// MonitorID is the monitor this event concerns, if any.
	MonitorID string `json:"monitor_id,omitempty"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Fields carries event-specific data (e.g. the cycle for a
	// deadlock report, the new state for a transition).
	Fields map[string]any `json:"fields,omitempty"`
}

// New creates an event of the given type.
func New(eventType string) Event {
	return Event{
		ID:        fmt.Sprintf("evt-%s", uuid.New().String()[:8]),
		Type:      eventType,
		Timestamp: time.Now(),
	}
}

// WithThread sets the thread ID.
func (e Event) WithThread(threadID string) Event {
	e.ThreadID = threadID
	return e
}

// WithMonitor sets the monitor ID.
func (e Event) WithMonitor(monitorID string) Event {
	e.MonitorID = monitorID
	return e
}

// WithField adds an entry to Fields.
func (e Event) WithField(key string, value any) Event {
	fields := make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		fields[k] = v
	}
	fields[key] = value
	e.Fields = fields
	return e
}
