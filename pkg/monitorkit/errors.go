package monitorkit

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/monitorkit/pkg/monitorkit/thread"
)

// ErrTimedOut is returned by TryAcquire when the timeout elapses before
// the monitor is acquired, and by Wait when the deadline elapses before a
// notification. In the Wait case the monitor has already been reacquired
// and its hold count restored by the time the error is returned.
var ErrTimedOut = errors.New("timed out")

// OwnershipError reports a release, wait, notify, or notifyAll attempted
// by a thread that does not own the monitor.
type OwnershipError struct {
	Thread  thread.ID
	Monitor string
	Op      string
}

// Error implements the error interface.
func (e *OwnershipError) Error() string {
	return fmt.Sprintf("%s on monitor %s: thread %s is not the owner", e.Op, e.Monitor, e.Thread)
}

// ReentrancyOverflowError reports a reentrant acquire that would push the
// hold count past the configured bound. The monitor is left unchanged.
type ReentrancyOverflowError struct {
	Thread  thread.ID
	Monitor string
	Limit   int
}

// Error implements the error interface.
func (e *ReentrancyOverflowError) Error() string {
	return fmt.Sprintf("acquire on monitor %s: thread %s exceeded reentrancy limit %d", e.Monitor, e.Thread, e.Limit)
}

// InterruptedError reports a cancellation delivered while the thread was
// blocked on entry or suspended in a wait set. For an interrupted wait the
// monitor has been reacquired and its hold count restored before this
// error is returned; bookkeeping is never left inconsistent.
type InterruptedError struct {
	Thread  thread.ID
	Monitor string
	Op      string
	Cause   error
}

// Error implements the error interface.
func (e *InterruptedError) Error() string {
	return fmt.Sprintf("%s on monitor %s: thread %s interrupted: %v", e.Op, e.Monitor, e.Thread, e.Cause)
}

// Unwrap returns the context error that caused the interruption.
func (e *InterruptedError) Unwrap() error {
	return e.Cause
}
