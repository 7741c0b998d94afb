package monitorkit

import (
	"time"

	"github.com/randalmurphal/monitorkit/pkg/monitorkit/thread"
)

// waitOutcome is the single resolution of a wait. Exactly one event
// (a notify selecting the entry, deadline expiry, or cancellation) gets
// to write it; whichever removes the entry from the wait set first wins
// and the others become no-ops.
type waitOutcome int

const (
	outcomePending waitOutcome = iota
	outcomeNotified
	outcomeTimedOut
	outcomeInterrupted
)

// waitEntry is one suspended thread in a monitor's wait set.
// All fields except timer are guarded by the owning monitor's internal
// mutex.
type waitEntry struct {
	id       thread.ID
	saved    int       // hold count to restore on reacquisition
	deadline time.Time // zero when the wait is unbounded

	outcome waitOutcome
	cause   error         // context error for an interrupted wait
	wake    chan struct{} // closed exactly once, when outcome is decided
	entry   *waiter       // entry-set slot taken when leaving the wait set
	timer   *time.Timer
}

// conditionQueue is a monitor's FIFO wait set. It has no lock of its
// own: every method is called with the owning monitor's internal mutex
// held, which is what makes "release + enqueue" in Wait a single
// indivisible step.
type conditionQueue struct {
	entries []*waitEntry
}

// enqueue appends an entry to the back of the wait set.
func (q *conditionQueue) enqueue(we *waitEntry) {
	q.entries = append(q.entries, we)
}

// popFront removes and returns the oldest entry, or nil when empty.
func (q *conditionQueue) popFront() *waitEntry {
	if len(q.entries) == 0 {
		return nil
	}
	we := q.entries[0]
	q.entries[0] = nil
	q.entries = q.entries[1:]
	return we
}

// drain removes and returns every entry in FIFO order.
func (q *conditionQueue) drain() []*waitEntry {
	drained := q.entries
	q.entries = nil
	return drained
}

// remove takes a specific entry out of the wait set. It reports false
// when the entry is no longer queued, meaning a competing event already
// claimed its outcome.
func (q *conditionQueue) remove(we *waitEntry) bool {
	for i, e := range q.entries {
		if e == we {
			copy(q.entries[i:], q.entries[i+1:])
			q.entries[len(q.entries)-1] = nil
			q.entries = q.entries[:len(q.entries)-1]
			return true
		}
	}
	return false
}

// len returns the number of suspended threads.
func (q *conditionQueue) len() int {
	return len(q.entries)
}

// ids returns the queued thread IDs in FIFO order.
func (q *conditionQueue) ids() []thread.ID {
	ids := make([]thread.ID, len(q.entries))
	for i, e := range q.entries {
		ids[i] = e.id
	}
	return ids
}
