package deadlock

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/monitorkit/pkg/monitorkit/event"
	"github.com/randalmurphal/monitorkit/pkg/monitorkit/history"
	"github.com/randalmurphal/monitorkit/pkg/monitorkit/observability"
)

// Source supplies monitor states for a detector pass.
type Source interface {
	MonitorStates() []MonitorState
}

// Watcher polls a Source and surfaces new cycles to the monitoring
// layer: structured log, event bus, metrics, and the audit store. A
// cycle is reported once when it appears; it stays in QueryDeadlocks
// output for as long as it persists.
type Watcher struct {
	source   Source
	interval time.Duration
	logger   *slog.Logger
	bus      *event.Bus
	store    history.Store
	metrics  observability.MetricsRecorder

	known  map[string]bool // cycles already reported
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewWatcher creates a watcher polling source at the given interval.
func NewWatcher(source Source, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Watcher{
		source:   source,
		interval: interval,
		logger:   slog.Default(),
		metrics:  observability.NoopMetrics{},
		known:    make(map[string]bool),
		stopCh:   make(chan struct{}),
	}
}

// WithLogger sets the logger.
func (w *Watcher) WithLogger(logger *slog.Logger) *Watcher {
	w.logger = logger
	return w
}

// WithBus sets the event bus reports are published to.
func (w *Watcher) WithBus(bus *event.Bus) *Watcher {
	w.bus = bus
	return w
}

// WithStore sets the audit store reports are recorded in.
func (w *Watcher) WithStore(store history.Store) *Watcher {
	w.store = store
	return w
}

// WithMetrics sets the metrics recorder.
func (w *Watcher) WithMetrics(metrics observability.MetricsRecorder) *Watcher {
	w.metrics = metrics
	return w
}

// Start begins polling in a background goroutine.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.Scan()
			case <-w.stopCh:
				return
			}
		}
	}()
}

// Stop halts polling and waits for the poll goroutine to exit.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.stopCh)
		w.wg.Wait()
	})
}

// Scan runs one detector pass, surfaces cycles not seen before, and
// returns every cycle currently present.
func (w *Watcher) Scan() []Report {
	reports := Detect(w.source.MonitorStates())

	current := make(map[string]bool, len(reports))
	for _, r := range reports {
		key := r.Key()
		current[key] = true
		if w.known[key] {
			continue
		}
		w.known[key] = true
		w.surface(r)
	}
	// Forget cycles that cleared so they are re-reported if they recur.
	for key := range w.known {
		if !current[key] {
			delete(w.known, key)
		}
	}
	return reports
}

func (w *Watcher) surface(r Report) {
	steps := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		steps[i] = string(s.Thread) + "->" + s.Monitor
	}
	observability.LogDeadlock(w.logger, steps)
	w.metrics.RecordDeadlock(context.Background(), len(r.Steps))

	if w.bus != nil {
		w.bus.Publish(event.New(event.TypeDeadlockDetected).
			WithField("cycle", steps))
	}
	if w.store != nil {
		detail, err := json.Marshal(r)
		if err != nil {
			detail = nil
		}
		rec := history.Record{
			Kind:      history.KindDeadlock,
			Detail:    detail,
			CreatedAt: r.DetectedAt,
		}
		if err := w.store.Append(rec); err != nil {
			w.logger.Warn("deadlock history append failed",
				slog.String("error", err.Error()),
			)
		}
	}
}
