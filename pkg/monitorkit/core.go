package monitorkit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/monitorkit/pkg/monitorkit/config"
	"github.com/randalmurphal/monitorkit/pkg/monitorkit/deadlock"
	"github.com/randalmurphal/monitorkit/pkg/monitorkit/event"
	"github.com/randalmurphal/monitorkit/pkg/monitorkit/history"
	"github.com/randalmurphal/monitorkit/pkg/monitorkit/observability"
	"github.com/randalmurphal/monitorkit/pkg/monitorkit/registry"
	"github.com/randalmurphal/monitorkit/pkg/monitorkit/thread"
)

// Core is the external surface of the monitor synchronization core. It
// owns the thread registry, the monitor table, the event bus, and the
// deadlock watcher, and validates thread identity on every operation.
//
// Raw goroutine spawning and scheduling stay with the caller; the core
// only coordinates threads the caller has registered.
type Core struct {
	cfg     config.CoreConfig
	logger  *slog.Logger
	metrics observability.MetricsRecorder

	bus      *event.Bus
	reg      *thread.Registry
	monitors *registry.Table[string, *Monitor]

	hist     history.Store
	watcher  *deadlock.Watcher
	recorder *history.Recorder

	closeOnce sync.Once
}

// New creates a core with the given configuration.
// Call Start to begin deadlock watching and history recording, and
// Close to tear everything down.
func New(cfg config.CoreConfig) *Core {
	if cfg.MaxHoldCount <= 0 {
		cfg.MaxHoldCount = config.DefaultMaxHoldCount
	}
	if cfg.DetectorInterval <= 0 {
		cfg.DetectorInterval = config.DefaultDetectorInterval
	}

	bus := event.NewBus(event.BusConfig{BufferSize: cfg.EventBufferSize})
	c := &Core{
		cfg:      cfg,
		logger:   slog.Default(),
		metrics:  observability.NoopMetrics{},
		bus:      bus,
		monitors: registry.New[string, *Monitor](),
	}
	c.reg = thread.NewRegistry().WithLogger(c.logger).WithBus(bus)
	return c
}

// WithLogger sets the logger.
func (c *Core) WithLogger(logger *slog.Logger) *Core {
	c.logger = logger
	c.reg.WithLogger(logger)
	return c
}

// WithMetrics sets the metrics recorder.
func (c *Core) WithMetrics(metrics observability.MetricsRecorder) *Core {
	c.metrics = metrics
	return c
}

// WithHistory sets the audit store, overriding HistoryPath.
func (c *Core) WithHistory(store history.Store) *Core {
	c.hist = store
	return c
}

// Start opens the audit store if configured and starts the deadlock
// watcher and history recorder.
func (c *Core) Start() error {
	if c.hist == nil && c.cfg.HistoryPath != "" {
		store, err := history.NewSQLiteStore(c.cfg.HistoryPath)
		if err != nil {
			return err
		}
		c.hist = store
	}
	if c.hist != nil {
		c.recorder = history.NewRecorder(c.hist, c.bus.Subscribe()).WithLogger(c.logger)
		c.recorder.Start()
	}

	c.watcher = deadlock.NewWatcher(c, c.cfg.DetectorInterval).
		WithLogger(c.logger).
		WithMetrics(c.metrics).
		WithBus(c.bus)
	if c.hist != nil {
		c.watcher = c.watcher.WithStore(c.hist)
	}
	c.watcher.Start()
	return nil
}

// Close stops the watcher and recorder, shuts down the bus, and closes
// the audit store.
func (c *Core) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.watcher != nil {
			c.watcher.Stop()
		}
		if c.recorder != nil {
			c.recorder.Stop()
		}
		c.bus.Close()
		if c.hist != nil {
			err = c.hist.Close()
		}
	})
	return err
}

// Registry returns the thread registry.
func (c *Core) Registry() *thread.Registry {
	return c.reg
}

// Bus returns the monitoring event bus.
func (c *Core) Bus() *event.Bus {
	return c.bus
}

// History returns the audit store, or nil when history is disabled.
func (c *Core) History() history.Store {
	return c.hist
}

// NewMonitor creates a monitor protecting the named resource.
func (c *Core) NewMonitor(name string) *Monitor {
	m := newMonitor(name, c.cfg.MaxHoldCount, c)
	c.monitors.Put(m.id, m)
	return m
}

// RegisterThread admits a thread into the core. The returned context is
// cancelled for daemon threads when the last non-daemon thread
// deregisters; the supplied goroutine should run under it.
func (c *Core) RegisterThread(name string, daemon bool) (thread.Descriptor, context.Context, error) {
	return c.reg.Register(name, daemon)
}

// DeregisterThread removes a thread from the core.
func (c *Core) DeregisterThread(id thread.ID) error {
	return c.reg.Deregister(id)
}

// Acquire takes the monitor for tid, blocking while another thread owns
// it. Reentrant acquisition by the owner increments the hold count.
func (c *Core) Acquire(ctx context.Context, m *Monitor, tid thread.ID) error {
	return c.acquire(ctx, m, tid, 0)
}

// TryAcquire is Acquire bounded by timeout; ErrTimedOut on expiry.
func (c *Core) TryAcquire(ctx context.Context, m *Monitor, tid thread.ID, timeout time.Duration) error {
	return c.acquire(ctx, m, tid, timeout)
}

func (c *Core) acquire(ctx context.Context, m *Monitor, tid thread.ID, timeout time.Duration) error {
	if err := c.checkThread(tid); err != nil {
		return err
	}

	ctx, span := observability.StartAcquireSpan(ctx, m.id, string(tid))
	done := observability.TimedOperation()

	contended, err := m.acquire(ctx, tid, timeout)
	waitedMs := done()
	observability.EndSpanWithError(span, err)

	if err != nil {
		return err
	}
	c.metrics.RecordAcquire(ctx, m.id, contended, time.Duration(waitedMs)*time.Millisecond)
	observability.LogAcquired(c.logger, string(tid), m.id, m.holdCountOf(tid), waitedMs)
	return nil
}

// Release undoes one Acquire by the owner; the monitor frees up when
// the hold count reaches zero.
func (c *Core) Release(m *Monitor, tid thread.ID) error {
	if err := c.checkThread(tid); err != nil {
		return err
	}
	if err := m.release(tid); err != nil {
		c.noteOwnershipViolation(err, tid, m)
		return err
	}
	observability.LogReleased(c.logger, string(tid), m.id)
	return nil
}

// Wait suspends the owning thread on the monitor's condition queue
// until notify, deadline expiry (timeout > 0), or cancellation. All
// resumptions reacquire the monitor and restore the recorded hold count
// before Wait returns.
func (c *Core) Wait(ctx context.Context, m *Monitor, tid thread.ID, timeout time.Duration) error {
	if err := c.checkThread(tid); err != nil {
		return err
	}

	spanCtx, span := observability.StartWaitSpan(ctx, m.id, string(tid))
	done := observability.TimedOperation()

	err := m.wait(ctx, tid, timeout)
	durationMs := done()
	observability.EndSpanWithError(span, err)

	outcome := waitOutcomeLabel(err)
	if outcome == "" {
		c.noteOwnershipViolation(err, tid, m)
		return err
	}
	c.metrics.RecordWait(spanCtx, m.id, outcome, time.Duration(durationMs)*time.Millisecond)
	observability.LogWaitOutcome(c.logger, string(tid), m.id, outcome, durationMs)
	return err
}

// Notify moves the oldest waiting thread to the monitor's entry set.
func (c *Core) Notify(m *Monitor, tid thread.ID) error {
	if err := c.checkThread(tid); err != nil {
		return err
	}
	woken, err := m.notify(tid)
	if err != nil {
		c.noteOwnershipViolation(err, tid, m)
		return err
	}
	c.metrics.RecordNotify(context.Background(), m.id, woken)
	return nil
}

// NotifyAll moves every waiting thread to the monitor's entry set.
func (c *Core) NotifyAll(m *Monitor, tid thread.ID) error {
	if err := c.checkThread(tid); err != nil {
		return err
	}
	woken, err := m.notifyAll(tid)
	if err != nil {
		c.noteOwnershipViolation(err, tid, m)
		return err
	}
	c.metrics.RecordNotify(context.Background(), m.id, woken)
	return nil
}

// QueryDeadlocks runs a detector pass over all monitors and returns the
// wait-for cycles currently present. Diagnostic only: no lock is
// cancelled or reordered on the strength of a report.
func (c *Core) QueryDeadlocks() []deadlock.Report {
	return deadlock.Detect(c.MonitorStates())
}

// MonitorStates implements deadlock.Source.
func (c *Core) MonitorStates() []deadlock.MonitorState {
	monitors := c.monitors.Values()
	states := make([]deadlock.MonitorState, 0, len(monitors))
	for _, m := range monitors {
		snap := m.Snapshot()
		states = append(states, deadlock.MonitorState{
			ID:      snap.ID,
			Owner:   snap.Owner,
			Blocked: snap.EntrySet,
		})
	}
	return states
}

func (c *Core) checkThread(tid thread.ID) error {
	if _, ok := c.reg.Snapshot(tid); !ok {
		return thread.ErrUnknownThread
	}
	return nil
}

func (c *Core) noteOwnershipViolation(err error, tid thread.ID, m *Monitor) {
	var oe *OwnershipError
	if errors.As(err, &oe) {
		observability.LogOwnershipViolation(c.logger, string(tid), m.id, oe.Op)
	}
}

// waitOutcomeLabel maps a wait result to its metrics label, or "" for
// errors raised before the thread ever suspended.
func waitOutcomeLabel(err error) string {
	switch {
	case err == nil:
		return "notified"
	case errors.Is(err, ErrTimedOut):
		return "timed_out"
	default:
		var ie *InterruptedError
		if errors.As(err, &ie) {
			return "interrupted"
		}
		return ""
	}
}

// holdCountOf reads the hold count if tid currently owns the monitor.
func (m *Monitor) holdCountOf(tid thread.ID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != tid {
		return 0
	}
	return m.holdCount
}
