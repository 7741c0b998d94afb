package history

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/randalmurphal/monitorkit/pkg/monitorkit/event"
)

// Recorder drains a bus subscription into a store, turning thread
// lifecycle events into audit records. Deadlock reports are written by
// the deadlock watcher directly; the recorder skips them to avoid
// double entries.
type Recorder struct {
	store  Store
	sub    *event.Subscription
	logger *slog.Logger

	wg   sync.WaitGroup
	once sync.Once
}

// NewRecorder creates a recorder over the given subscription.
func NewRecorder(store Store, sub *event.Subscription) *Recorder {
	return &Recorder{
		store:  store,
		sub:    sub,
		logger: slog.Default(),
	}
}

// WithLogger sets the logger.
func (r *Recorder) WithLogger(logger *slog.Logger) *Recorder {
	r.logger = logger
	return r
}

// Start begins draining events in a background goroutine.
func (r *Recorder) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for evt := range r.sub.C {
			if evt.Type == event.TypeDeadlockDetected {
				continue
			}
			detail, err := json.Marshal(struct {
				Type   string         `json:"type"`
				Fields map[string]any `json:"fields,omitempty"`
			}{evt.Type, evt.Fields})
			if err != nil {
				detail = nil
			}
			rec := Record{
				Kind:      KindLifecycle,
				ThreadID:  evt.ThreadID,
				MonitorID: evt.MonitorID,
				Detail:    detail,
				CreatedAt: evt.Timestamp,
			}
			if err := r.store.Append(rec); err != nil {
				r.logger.Warn("history append failed",
					slog.String("event_type", evt.Type),
					slog.String("error", err.Error()),
				)
			}
		}
	}()
}

// Stop unsubscribes and waits for the drain goroutine to finish.
func (r *Recorder) Stop() {
	r.once.Do(func() {
		r.sub.Unsubscribe()
		r.wg.Wait()
	})
}
