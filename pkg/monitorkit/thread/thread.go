// Package thread tracks every thread participating in the monitor core.
//
// The Registry owns the authoritative Descriptor for each thread from
// registration to termination. Descriptor state is mutated only by the
// core's lock, wait-set, and lifecycle transitions; callers observe
// snapshots. The registry's own bookkeeping is internally serialized,
// independent of any application-level monitor.
//
// Daemon accounting lives in the LifecycleTracker: when the last
// non-daemon thread deregisters, every remaining daemon thread's context
// is cancelled and the tracker stops accepting non-daemon registrations.
package thread

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ID identifies a registered thread.
type ID string

// State is a thread's scheduling state as the core sees it.
type State string

// Thread states.
const (
	StateRunnable       State = "runnable"
	StateBlockedOnEntry State = "blocked_on_entry"
	StateWaiting        State = "waiting"
	StateTimedWaiting   State = "timed_waiting"
	StateTerminated     State = "terminated"
)

// Registry errors.
var (
	// ErrRegistryClosed is returned for non-daemon registrations after
	// daemon shutdown has fired.
	ErrRegistryClosed = errors.New("thread registry closed to non-daemon threads")

	// ErrUnknownThread is returned for operations on an unregistered ID.
	ErrUnknownThread = errors.New("unknown thread")

	// ErrDuplicateThread is returned when an ID is already registered.
	ErrDuplicateThread = errors.New("thread already registered")
)

// Descriptor describes a registered thread.
type Descriptor struct {
	ID           ID        `json:"id"`
	Name         string    `json:"name"`
	Daemon       bool      `json:"daemon"`
	State        State     `json:"state"`
	HeldMonitors []string  `json:"held_monitors,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

// newID generates a thread ID.
func newID() ID {
	return ID(fmt.Sprintf("thr-%s", uuid.New().String()[:8]))
}
