package thread

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/randalmurphal/monitorkit/pkg/monitorkit/event"
	"github.com/randalmurphal/monitorkit/pkg/monitorkit/registry"
)

// Registry is the process-wide thread table.
type Registry struct {
	logger  *slog.Logger
	bus     *event.Bus
	tracker *LifecycleTracker
	table   *registry.Table[ID, *entry]
}

// entry guards one descriptor. Descriptor mutation goes through the
// entry's mutex so state transitions from different monitors never
// interleave.
type entry struct {
	mu   sync.Mutex
	desc Descriptor
	held map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		tracker: NewLifecycleTracker(),
		table:   registry.New[ID, *entry](),
	}
}

// WithLogger sets the logger.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithBus sets the event bus lifecycle events are published to.
func (r *Registry) WithBus(bus *event.Bus) *Registry {
	r.bus = bus
	return r
}

// Tracker returns the daemon lifecycle tracker.
func (r *Registry) Tracker() *LifecycleTracker {
	return r.tracker
}

// Register admits a new thread and returns its descriptor together with
// the context the supplied goroutine should run under. For daemon
// threads the context is cancelled when the last non-daemon thread
// deregisters.
func (r *Registry) Register(name string, daemon bool) (Descriptor, context.Context, error) {
	id := newID()
	ctx, err := r.tracker.Admit(id, daemon)
	if err != nil {
		return Descriptor{}, nil, err
	}

	e := &entry{
		desc: Descriptor{
			ID:           id,
			Name:         name,
			Daemon:       daemon,
			State:        StateRunnable,
			RegisteredAt: time.Now(),
		},
		held: make(map[string]struct{}),
	}
	if !r.table.PutIfAbsent(id, e) {
		// uuid collision; do not leak the tracker admission
		r.tracker.Retire(id, daemon)
		return Descriptor{}, nil, ErrDuplicateThread
	}

	r.logger.Debug("thread registered",
		slog.String("thread_id", string(id)),
		slog.String("name", name),
		slog.Bool("daemon", daemon),
	)
	r.publish(event.New(event.TypeThreadRegistered).
		WithThread(string(id)).
		WithField("daemon", daemon))

	return e.desc, ctx, nil
}

// Deregister removes a thread. If the thread was the last non-daemon
// one, all remaining daemon threads are cancelled.
func (r *Registry) Deregister(id ID) error {
	e, ok := r.table.Get(id)
	if !ok {
		return ErrUnknownThread
	}

	e.mu.Lock()
	e.desc.State = StateTerminated
	daemon := e.desc.Daemon
	e.mu.Unlock()

	r.table.Delete(id)

	cancelled, fired := r.tracker.Retire(id, daemon)

	r.logger.Debug("thread deregistered",
		slog.String("thread_id", string(id)),
		slog.Bool("daemon", daemon),
	)
	r.publish(event.New(event.TypeThreadDeregistered).
		WithThread(string(id)).
		WithField("daemon", daemon))

	if fired {
		r.logger.Info("last non-daemon thread gone, cancelling daemon threads",
			slog.Int("daemons", len(cancelled)),
		)
		for _, did := range cancelled {
			r.publish(event.New(event.TypeDaemonCancelled).WithThread(string(did)))
		}
	}
	return nil
}

// SetState transitions a thread's state.
func (r *Registry) SetState(id ID, state State) error {
	e, ok := r.table.Get(id)
	if !ok {
		return ErrUnknownThread
	}

	e.mu.Lock()
	prev := e.desc.State
	e.desc.State = state
	e.mu.Unlock()

	if prev != state {
		r.publish(event.New(event.TypeThreadState).
			WithThread(string(id)).
			WithField("from", string(prev)).
			WithField("to", string(state)))
	}
	return nil
}

// AddHeld records that the thread holds a monitor.
func (r *Registry) AddHeld(id ID, monitorID string) {
	if e, ok := r.table.Get(id); ok {
		e.mu.Lock()
		e.held[monitorID] = struct{}{}
		e.mu.Unlock()
	}
}

// RemoveHeld records that the thread released a monitor.
func (r *Registry) RemoveHeld(id ID, monitorID string) {
	if e, ok := r.table.Get(id); ok {
		e.mu.Lock()
		delete(e.held, monitorID)
		e.mu.Unlock()
	}
}

// Snapshot returns a copy of the thread's descriptor.
func (r *Registry) Snapshot(id ID) (Descriptor, bool) {
	e, ok := r.table.Get(id)
	if !ok {
		return Descriptor{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(), true
}

// List returns descriptor snapshots for every registered thread,
// ordered by ID.
func (r *Registry) List() []Descriptor {
	entries := r.table.Values()
	out := make([]Descriptor, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.snapshotLocked())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered threads.
func (r *Registry) Len() int {
	return r.table.Len()
}

func (e *entry) snapshotLocked() Descriptor {
	d := e.desc
	if len(e.held) > 0 {
		d.HeldMonitors = make([]string, 0, len(e.held))
		for m := range e.held {
			d.HeldMonitors = append(d.HeldMonitors, m)
		}
		sort.Strings(d.HeldMonitors)
	}
	return d
}

func (r *Registry) publish(evt event.Event) {
	if r.bus != nil {
		r.bus.Publish(evt)
	}
}
