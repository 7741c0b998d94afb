package monitorkit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/monitorkit/pkg/monitorkit/thread"
)

// waiter is one thread blocked in a monitor's entry set. Its ready
// channel is closed by the release that leaves the monitor free; the
// woken thread then retries acquisition.
type waiter struct {
	id    thread.ID
	ready chan struct{}
}

// Monitor is a reentrant mutual-exclusion lock bound to one shared
// resource, together with its condition wait set.
//
// The semantic lock state (owner, holdCount, entrySet, waitSet) is
// mutated only under mu, the monitor's internal bookkeeping mutex. mu is
// never held while a thread is suspended.
type Monitor struct {
	id    string
	name  string
	limit int // reentrancy bound
	core  *Core

	mu        sync.Mutex
	owner     thread.ID // "" when free
	holdCount int       // > 0 iff owner is set
	entrySet  []*waiter
	waitq     conditionQueue
}

// newMonitor is called by Core.NewMonitor.
func newMonitor(name string, limit int, core *Core) *Monitor {
	return &Monitor{
		id:    fmt.Sprintf("mon-%s", uuid.New().String()[:8]),
		name:  name,
		limit: limit,
		core:  core,
	}
}

// ID returns the monitor's unique identifier.
func (m *Monitor) ID() string {
	return m.id
}

// Name returns the monitor's resource name.
func (m *Monitor) Name() string {
	return m.name
}

// Snapshot is a point-in-time copy of a monitor's state, taken under the
// internal mutex. Used for introspection and deadlock analysis; never a
// live view.
type Snapshot struct {
	ID        string
	Name      string
	Owner     thread.ID
	HoldCount int
	EntrySet  []thread.ID
	WaitSet   []thread.ID
}

// Snapshot returns a consistent copy of the monitor's state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		ID:        m.id,
		Name:      m.name,
		Owner:     m.owner,
		HoldCount: m.holdCount,
		WaitSet:   m.waitq.ids(),
	}
	snap.EntrySet = make([]thread.ID, len(m.entrySet))
	for i, w := range m.entrySet {
		snap.EntrySet[i] = w.id
	}
	return snap
}

// acquire takes the monitor for tid, blocking while another thread owns
// it. timeout <= 0 means wait indefinitely. Reentrant acquisition by the
// current owner increments the hold count up to the reentrancy bound.
// contended reports whether the thread blocked at least once.
func (m *Monitor) acquire(ctx context.Context, tid thread.ID, timeout time.Duration) (contended bool, err error) {
	var timerC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timerC = timer.C
	}

	m.mu.Lock()
	for {
		if m.owner == tid {
			if m.holdCount >= m.limit {
				m.mu.Unlock()
				return contended, &ReentrancyOverflowError{Thread: tid, Monitor: m.id, Limit: m.limit}
			}
			m.holdCount++
			m.mu.Unlock()
			return contended, nil
		}
		if m.owner == "" {
			m.owner = tid
			m.holdCount = 1
			m.mu.Unlock()
			m.threadAcquired(tid)
			return contended, nil
		}

		contended = true
		w := &waiter{id: tid, ready: make(chan struct{})}
		m.entrySet = append(m.entrySet, w)
		m.mu.Unlock()

		m.setState(tid, thread.StateBlockedOnEntry)

		select {
		case <-w.ready:
			// A release left the monitor free; retry. A competing
			// enterer may still win the race.
		case <-timerC:
			m.abandonEntry(w)
			m.setState(tid, thread.StateRunnable)
			return contended, ErrTimedOut
		case <-ctx.Done():
			m.abandonEntry(w)
			m.setState(tid, thread.StateRunnable)
			return contended, &InterruptedError{Thread: tid, Monitor: m.id, Op: "acquire", Cause: ctx.Err()}
		}
		m.mu.Lock()
	}
}

// release undoes one acquire by the owner. When the hold count reaches
// zero the monitor is freed and the entry-set head is woken, all as one
// step under the internal mutex.
func (m *Monitor) release(tid thread.ID) error {
	m.mu.Lock()
	if m.owner != tid {
		m.mu.Unlock()
		return &OwnershipError{Thread: tid, Monitor: m.id, Op: "release"}
	}
	m.holdCount--
	freed := m.holdCount == 0
	if freed {
		m.owner = ""
		m.wakeNextLocked()
	}
	m.mu.Unlock()

	if freed {
		m.threadReleased(tid)
	}
	return nil
}

// wait suspends the owner on the monitor's condition queue. The
// ownership check, hold-count recording, release, enqueue, and entry-set
// wakeup happen as one step under the internal mutex; a notifier running
// right after wait returns control cannot slip between them, so no
// wakeup is lost.
//
// The thread resumes via notify, deadline expiry (timeout > 0), or
// cancellation. All three resumptions reacquire the monitor and restore
// the recorded hold count before wait returns.
func (m *Monitor) wait(ctx context.Context, tid thread.ID, timeout time.Duration) error {
	m.mu.Lock()
	if m.owner != tid {
		m.mu.Unlock()
		return &OwnershipError{Thread: tid, Monitor: m.id, Op: "wait"}
	}

	we := &waitEntry{
		id:    tid,
		saved: m.holdCount,
		wake:  make(chan struct{}),
	}
	timed := timeout > 0
	if timed {
		we.deadline = time.Now().Add(timeout)
	}

	m.owner = ""
	m.holdCount = 0
	m.waitq.enqueue(we)
	m.wakeNextLocked()
	if timed {
		we.timer = time.AfterFunc(timeout, func() { m.expireWait(we) })
	}
	m.mu.Unlock()

	m.threadReleased(tid)
	if timed {
		m.setState(tid, thread.StateTimedWaiting)
	} else {
		m.setState(tid, thread.StateWaiting)
	}

	select {
	case <-we.wake:
	case <-ctx.Done():
		m.interruptWait(we, ctx.Err())
		<-we.wake
	}
	if we.timer != nil {
		we.timer.Stop()
	}

	// Every outcome routes through the same reacquire-and-restore path
	// before control returns; the reacquire itself is not cancellable.
	m.reacquire(we)
	m.threadAcquired(tid)

	switch we.outcome {
	case outcomeTimedOut:
		return ErrTimedOut
	case outcomeInterrupted:
		return &InterruptedError{Thread: tid, Monitor: m.id, Op: "wait", Cause: we.cause}
	default:
		return nil
	}
}

// notify moves the oldest wait-set entry to the entry set. The monitor
// stays held; the woken thread proceeds only after a later release
// frees it. Returns the number of threads moved (0 or 1).
func (m *Monitor) notify(tid thread.ID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.owner != tid {
		return 0, &OwnershipError{Thread: tid, Monitor: m.id, Op: "notify"}
	}
	we := m.waitq.popFront()
	if we == nil {
		return 0, nil
	}
	m.resolveLocked(we, outcomeNotified, nil)
	return 1, nil
}

// notifyAll moves every thread currently in the wait set to the entry
// set and returns how many were moved.
func (m *Monitor) notifyAll(tid thread.ID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.owner != tid {
		return 0, &OwnershipError{Thread: tid, Monitor: m.id, Op: "notifyAll"}
	}
	drained := m.waitq.drain()
	for _, we := range drained {
		m.resolveLocked(we, outcomeNotified, nil)
	}
	return len(drained), nil
}

// expireWait is the deadline path. It only wins if the entry is still in
// the wait set; a notify or cancellation that got there first already
// claimed the outcome.
func (m *Monitor) expireWait(we *waitEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.waitq.remove(we) {
		return
	}
	m.resolveLocked(we, outcomeTimedOut, nil)
}

// interruptWait is the cancellation path, with the same first-remover-
// wins arbitration as expireWait.
func (m *Monitor) interruptWait(we *waitEntry, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.waitq.remove(we) {
		return
	}
	m.resolveLocked(we, outcomeInterrupted, cause)
}

// resolveLocked decides a wait's outcome, moves it into entry
// contention, and wakes the suspended thread. Called with mu held.
func (m *Monitor) resolveLocked(we *waitEntry, outcome waitOutcome, cause error) {
	we.outcome = outcome
	we.cause = cause
	if we.timer != nil {
		we.timer.Stop()
	}
	w := &waiter{id: we.id, ready: make(chan struct{})}
	we.entry = w
	m.entrySet = append(m.entrySet, w)
	if m.owner == "" {
		// Timeout or cancellation can land on a free monitor; without
		// an owner there is no future release to wake the entry set.
		m.wakeNextLocked()
	}
	close(we.wake)
}

// reacquire blocks until the resumed waiter owns the monitor again, then
// restores the hold count recorded when wait began.
func (m *Monitor) reacquire(we *waitEntry) {
	w := we.entry
	for {
		m.setState(we.id, thread.StateBlockedOnEntry)
		<-w.ready

		m.mu.Lock()
		if m.owner == "" {
			m.owner = we.id
			m.holdCount = we.saved
			m.mu.Unlock()
			return
		}
		w = &waiter{id: we.id, ready: make(chan struct{})}
		m.entrySet = append(m.entrySet, w)
		m.mu.Unlock()
	}
}

// abandonEntry removes a waiter whose thread is giving up (timeout or
// cancellation). If the waiter was already woken, its wakeup is passed
// to the next enterer so no thread is stranded.
func (m *Monitor) abandonEntry(w *waiter) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.entrySet {
		if e == w {
			copy(m.entrySet[i:], m.entrySet[i+1:])
			m.entrySet[len(m.entrySet)-1] = nil
			m.entrySet = m.entrySet[:len(m.entrySet)-1]
			return
		}
	}
	if m.owner == "" {
		m.wakeNextLocked()
	}
}

// wakeNextLocked wakes the entry-set head. FIFO is an implementation
// choice here, not a contract. Called with mu held.
func (m *Monitor) wakeNextLocked() {
	if len(m.entrySet) == 0 {
		return
	}
	w := m.entrySet[0]
	m.entrySet[0] = nil
	m.entrySet = m.entrySet[1:]
	close(w.ready)
}

// Registry bookkeeping is best-effort: a thread may deregister while
// one of its monitor operations is still unwinding.

func (m *Monitor) setState(tid thread.ID, s thread.State) {
	if m.core != nil && m.core.reg != nil {
		_ = m.core.reg.SetState(tid, s)
	}
}

func (m *Monitor) threadAcquired(tid thread.ID) {
	if m.core != nil && m.core.reg != nil {
		m.core.reg.AddHeld(tid, m.id)
		_ = m.core.reg.SetState(tid, thread.StateRunnable)
	}
}

func (m *Monitor) threadReleased(tid thread.ID) {
	if m.core != nil && m.core.reg != nil {
		m.core.reg.RemoveHeld(tid, m.id)
	}
}
