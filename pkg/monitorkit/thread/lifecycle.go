package thread

import (
	"context"
	"sync"
)

// LifecycleTracker counts live non-daemon threads and cancels daemon
// threads when that count returns to zero.
//
// Each registered thread receives a context derived at admission. For
// daemon threads that context is cancelled when the last non-daemon
// thread retires: abruptly, not a graceful join. The tracker is
// serialized by its own mutex, separate from the registry table and from
// any application monitor.
type LifecycleTracker struct {
	mu        sync.Mutex
	started   bool // first non-daemon admission seen
	shutdown  bool // daemon cancellation has fired
	nonDaemon int
	daemons   map[ID]context.CancelFunc
}

// NewLifecycleTracker creates an empty tracker.
func NewLifecycleTracker() *LifecycleTracker {
	return &LifecycleTracker{
		daemons: make(map[ID]context.CancelFunc),
	}
}

// Admit records a new thread and returns its context.
// Non-daemon admission after shutdown fails with ErrRegistryClosed;
// daemon threads admitted after shutdown get an already-cancelled
// context.
func (t *LifecycleTracker) Admit(id ID, daemon bool) (context.Context, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !daemon {
		if t.shutdown {
			return nil, ErrRegistryClosed
		}
		t.started = true
		t.nonDaemon++
		return context.Background(), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	if t.shutdown {
		cancel()
		return ctx, nil
	}
	t.daemons[id] = cancel
	return ctx, nil
}

// Retire records a thread's termination. When the retiring thread is the
// last non-daemon one, every remaining daemon context is cancelled; the
// returned slice holds the IDs that were cancelled, and fired reports
// whether the shutdown transition happened on this call.
func (t *LifecycleTracker) Retire(id ID, daemon bool) (cancelled []ID, fired bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if daemon {
		if cancel, ok := t.daemons[id]; ok {
			cancel()
			delete(t.daemons, id)
		}
		return nil, false
	}

	if t.nonDaemon > 0 {
		t.nonDaemon--
	}
	if t.nonDaemon != 0 || !t.started || t.shutdown {
		return nil, false
	}

	t.shutdown = true
	cancelled = make([]ID, 0, len(t.daemons))
	for did, cancel := range t.daemons {
		cancel()
		cancelled = append(cancelled, did)
	}
	clear(t.daemons)
	return cancelled, true
}

// NonDaemonCount returns the number of live non-daemon threads.
func (t *LifecycleTracker) NonDaemonCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nonDaemon
}

// ShutDown reports whether daemon cancellation has fired.
func (t *LifecycleTracker) ShutDown() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shutdown
}
