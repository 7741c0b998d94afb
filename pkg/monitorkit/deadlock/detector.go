// Package deadlock builds a wait-for graph from monitor snapshots and
// reports cycles.
//
// Detection is diagnostic only: a reported cycle is surfaced to the
// monitoring layer, never resolved by cancelling or reordering locks.
// There is no runtime remedy for a lock cycle; avoidance is a
// caller-discipline concern.
package deadlock

import (
	"sort"
	"strings"
	"time"

	"github.com/randalmurphal/monitorkit/pkg/monitorkit/thread"
)

// MonitorState is the detector's view of one monitor: who owns it and
// who is blocked trying to enter it. States are snapshots; edges derived
// from them are never persisted.
type MonitorState struct {
	ID      string
	Owner   thread.ID
	Blocked []thread.ID
}

// Step is one hop of a cycle: a thread and the monitor it is blocked on.
// The monitor's owner is the thread of the next step (wrapping around).
type Step struct {
	Thread  thread.ID `json:"thread"`
	Monitor string    `json:"monitor"`
}

// Report is one detected cycle.
type Report struct {
	Steps      []Step    `json:"steps"`
	DetectedAt time.Time `json:"detected_at"`
}

// Key returns a stable identity for the cycle, used to deduplicate
// reports across detector passes.
func (r Report) Key() string {
	parts := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		parts[i] = string(s.Thread) + "->" + s.Monitor
	}
	return strings.Join(parts, ",")
}

// Detect runs one pass over the given monitor states and returns every
// distinct wait-for cycle.
//
// A thread blocked on a monitor points at that monitor's owner; a cycle
// of such edges is a deadlock. Each cycle is reported once, rotated so
// its lexicographically smallest thread comes first, and reports are
// ordered by key for deterministic output.
func Detect(states []MonitorState) []Report {
	// A thread blocks on at most one monitor at a time; if snapshots
	// disagree (they were not taken atomically), the first wins.
	waitsOn := make(map[thread.ID]string)
	ownerOf := make(map[string]thread.ID)
	for _, s := range states {
		if s.Owner != "" {
			ownerOf[s.ID] = s.Owner
		}
		for _, t := range s.Blocked {
			if _, ok := waitsOn[t]; !ok {
				waitsOn[t] = s.ID
			}
		}
	}

	now := time.Now()
	seen := make(map[string]bool)
	var reports []Report

	for start := range waitsOn {
		index := make(map[thread.ID]int)
		var path []Step

		t := start
		for {
			mon, blocked := waitsOn[t]
			if !blocked {
				break
			}
			if i, onPath := index[t]; onPath {
				cycle := canonical(path[i:])
				r := Report{Steps: cycle, DetectedAt: now}
				if key := r.Key(); !seen[key] {
					seen[key] = true
					reports = append(reports, r)
				}
				break
			}
			index[t] = len(path)
			path = append(path, Step{Thread: t, Monitor: mon})

			owner, held := ownerOf[mon]
			if !held {
				break
			}
			t = owner
		}
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Key() < reports[j].Key()
	})
	return reports
}

// canonical rotates a cycle so the smallest thread ID leads.
func canonical(cycle []Step) []Step {
	lead := 0
	for i := 1; i < len(cycle); i++ {
		if cycle[i].Thread < cycle[lead].Thread {
			lead = i
		}
	}
	out := make([]Step, 0, len(cycle))
	out = append(out, cycle[lead:]...)
	out = append(out, cycle[:lead]...)
	return out
}
