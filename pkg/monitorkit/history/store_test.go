package history_test

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/monitorkit/pkg/monitorkit/history"
)

// storeContract runs the behavior every Store implementation shares.
func storeContract(t *testing.T, open func(t *testing.T) history.Store) {
	t.Run("append and list newest first", func(t *testing.T) {
		store := open(t)
		defer store.Close()

		for i, tid := range []string{"thr-1", "thr-2", "thr-3"} {
			require.NoError(t, store.Append(history.Record{
				Kind:      history.KindLifecycle,
				ThreadID:  tid,
				CreatedAt: time.Date(2026, 8, 1, 0, 0, i, 0, time.UTC),
			}))
		}

		records, err := store.List("", 0)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "thr-3", records[0].ThreadID)
		assert.Equal(t, "thr-1", records[2].ThreadID)
	})

	t.Run("filter by kind", func(t *testing.T) {
		store := open(t)
		defer store.Close()

		require.NoError(t, store.Append(history.Record{Kind: history.KindLifecycle, ThreadID: "thr-1"}))
		require.NoError(t, store.Append(history.Record{Kind: history.KindDeadlock, MonitorID: "mon-1"}))

		records, err := store.List(history.KindDeadlock, 0)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "mon-1", records[0].MonitorID)
	})

	t.Run("limit", func(t *testing.T) {
		store := open(t)
		defer store.Close()

		for range 5 {
			require.NoError(t, store.Append(history.Record{Kind: history.KindLifecycle}))
		}
		records, err := store.List("", 2)
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("detail round-trips", func(t *testing.T) {
		store := open(t)
		defer store.Close()

		detail, err := json.Marshal(map[string]any{"type": "thread.registered", "name": "worker"})
		require.NoError(t, err)
		require.NoError(t, store.Append(history.Record{Kind: history.KindLifecycle, Detail: detail}))

		records, err := store.List("", 1)
		require.NoError(t, err)
		require.Len(t, records, 1)

		var got map[string]any
		require.NoError(t, json.Unmarshal(records[0].Detail, &got))
		assert.Equal(t, "worker", got["name"])
	})

	t.Run("zero created_at is filled", func(t *testing.T) {
		store := open(t)
		defer store.Close()

		require.NoError(t, store.Append(history.Record{Kind: history.KindLifecycle}))
		records, err := store.List("", 1)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.False(t, records[0].CreatedAt.IsZero())
	})

	t.Run("closed store rejects operations", func(t *testing.T) {
		store := open(t)
		require.NoError(t, store.Close())

		assert.ErrorIs(t, store.Append(history.Record{Kind: history.KindLifecycle}), history.ErrStoreClosed)
		_, err := store.List("", 0)
		assert.ErrorIs(t, err, history.ErrStoreClosed)
		assert.NoError(t, store.Close(), "close is idempotent")
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(t *testing.T) history.Store {
		return history.NewMemoryStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	storeContract(t, func(t *testing.T) history.Store {
		store, err := history.NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
		require.NoError(t, err)
		return store
	})
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := history.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(history.Record{Kind: history.KindDeadlock, MonitorID: "mon-1"}))
	require.NoError(t, store.Close())

	reopened, err := history.NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	records, err := reopened.List(history.KindDeadlock, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "mon-1", records[0].MonitorID)
}
