// Package monitorkit implements a monitor synchronization core: reentrant
// mutual-exclusion locks bound to shared resources, each with an
// associated condition wait-set for inter-thread signaling.
//
// A Monitor couples a lock and a condition queue under one identity, so
// any protected resource exposes the capability set acquire, release,
// wait, notify, notifyAll. The Core facade validates thread identity
// against the process-wide thread registry, instruments operations, and
// exposes diagnostic deadlock queries.
//
// Correctness rests on one rule: every compound transition, "check
// ownership, release, enqueue" in Wait and "decrement, clear owner, wake
// one" in Release, executes under the monitor's internal bookkeeping
// mutex, which is distinct from the semantic lock callers see. Any gap
// between those steps admits a lost-wakeup race with a concurrent
// notifier.
//
// Ordering among blocked enterers and notified waiters is FIFO as an
// implementation convenience. Only "eventually woken" is contractual:
// a woken enterer retries acquisition and may lose to a fresh acquirer.
//
// Deadlock detection is diagnostic only. A reported cycle is surfaced to
// the monitoring layer and never auto-resolved; avoidance remains a
// caller-discipline concern.
package monitorkit
