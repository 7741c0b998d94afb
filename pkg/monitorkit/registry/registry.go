// Package registry provides a generic concurrency-safe keyed table.
//
// monitorkit uses it for the two process-wide tables the core maintains:
// thread descriptors (keyed by thread ID) and monitors (keyed by monitor
// ID). Both tables are read far more often than they are written (every
// deadlock scan walks them), so the table is guarded by a sync.RWMutex.
package registry

import "sync"

// Table is a thread-safe map from K to V.
type Table[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
}

// New creates an empty table.
func New[K comparable, V any]() *Table[K, V] {
	return &Table[K, V]{
		entries: make(map[K]V),
	}
}

// Put adds or replaces the value for a key.
func (t *Table[K, V]) Put(key K, value V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key] = value
}

// PutIfAbsent adds the value only if the key is not present.
// It reports whether the value was added.
func (t *Table[K, V]) PutIfAbsent(key K, value V) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[key]; ok {
		return false
	}
	t.entries[key] = value
	return true
}

// Get returns the value for a key and whether it exists.
func (t *Table[K, V]) Get(key K) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.entries[key]
	return v, ok
}

// Delete removes a key. It reports whether the key was present.
func (t *Table[K, V]) Delete(key K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[key]; !ok {
		return false
	}
	delete(t.entries, key)
	return true
}

// Len returns the number of entries.
func (t *Table[K, V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Values returns a snapshot of all values. Order is not guaranteed.
func (t *Table[K, V]) Values() []V {
	t.mu.RLock()
	defer t.mu.RUnlock()
	values := make([]V, 0, len(t.entries))
	for _, v := range t.entries {
		values = append(values, v)
	}
	return values
}

// Range calls fn for each entry of a snapshot taken under the read lock.
// If fn returns false, iteration stops. Because iteration runs over the
// snapshot, fn may call Put or Delete without deadlocking.
func (t *Table[K, V]) Range(fn func(K, V) bool) {
	t.mu.RLock()
	snapshot := make(map[K]V, len(t.entries))
	for k, v := range t.entries {
		snapshot[k] = v
	}
	t.mu.RUnlock()

	for k, v := range snapshot {
		if !fn(k, v) {
			return
		}
	}
}
