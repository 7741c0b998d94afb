// Package history persists an audit trail of monitor-core diagnostics:
// deadlock reports and thread lifecycle transitions.
package history

import (
	"encoding/json"
	"errors"
	"time"
)

// Record kinds.
const (
	KindDeadlock  = "deadlock"
	KindLifecycle = "lifecycle"
)

// Record is one audit entry.
type Record struct {
	Kind      string          `json:"kind"`
	ThreadID  string          `json:"thread_id,omitempty"`
	MonitorID string          `json:"monitor_id,omitempty"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store persists audit records.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append stores a record. A zero CreatedAt is filled in.
	Append(rec Record) error

	// List returns the most recent records of a kind, newest first.
	// kind "" matches every kind. limit <= 0 means no limit.
	List(kind string, limit int) ([]Record, error)

	// Close releases any resources.
	Close() error
}

// ErrStoreClosed indicates the store has been closed.
var ErrStoreClosed = errors.New("history store closed")
