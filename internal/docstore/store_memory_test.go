package docstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peakform/internal/sentinel"
)

func TestInMemoryStore_GetSetUpdateDelete(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	_, err := store.Get(ctx, "users", "u1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	require.NoError(t, store.Set(ctx, "users", "u1", Doc{"email": "a@b.c", "deletionScheduled": false}))

	doc, err := store.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", String(doc, "email"))
	assert.False(t, Bool(doc, "deletionScheduled"))

	require.NoError(t, store.Update(ctx, "users", "u1", Doc{"deletionScheduled": true}))
	doc, err = store.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.True(t, Bool(doc, "deletionScheduled"))
	assert.Equal(t, "a@b.c", String(doc, "email"), "update merges, never replaces")

	assert.ErrorIs(t, store.Update(ctx, "users", "missing", Doc{"x": 1}), sentinel.ErrNotFound)

	require.NoError(t, store.Delete(ctx, "users", "u1"))
	_, err = store.Get(ctx, "users", "u1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStore_GetReturnsCopy(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "users", "u1", Doc{"count": int64(1)}))
	doc, err := store.Get(ctx, "users", "u1")
	require.NoError(t, err)
	doc["count"] = int64(99)

	again, err := store.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), Int64(again, "count"), "mutating a snapshot must not leak into the store")
}

func TestInMemoryStore_TransactionRollsBackOnError(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "counters", "c1", Doc{"count": int64(5)}))

	abort := sentinel.ErrInvalidState
	err := store.RunTransaction(ctx, func(tx Tx) error {
		require.NoError(t, tx.Set("counters", "c1", Doc{"count": int64(100)}))
		return abort
	})
	require.ErrorIs(t, err, abort)

	doc, err := store.Get(ctx, "counters", "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), Int64(doc, "count"), "aborted transaction must leave no partial writes")
}

func TestInMemoryStore_ConcurrentTransactionsSerialize(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "counters", "shared", Doc{"count": int64(0)}))

	const goroutines = 32
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for n := 0; n < goroutines; n++ {
		go func() {
			defer wg.Done()
			_ = store.RunTransaction(ctx, func(tx Tx) error {
				doc, err := tx.Get("counters", "shared")
				if err != nil {
					return err
				}
				doc["count"] = Int64(doc, "count") + 1
				return tx.Set("counters", "shared", doc)
			})
		}()
	}
	wg.Wait()

	doc, err := store.Get(ctx, "counters", "shared")
	require.NoError(t, err)
	assert.Equal(t, int64(goroutines), Int64(doc, "count"), "no increment may be lost")
}

func TestInMemoryStore_QueryFiltersAndLimit(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, age := range []time.Duration{0, time.Hour, 48 * time.Hour, 72 * time.Hour} {
		require.NoError(t, store.Set(ctx, "rate_limits", string(rune('a'+i)), Doc{
			"windowStart": base.Add(-age).Unix(),
		}))
	}

	cutoff := base.Add(-24 * time.Hour).Unix()
	snaps, err := store.Query(ctx, "rate_limits", []Filter{
		{Field: "windowStart", Op: "<", Value: cutoff},
	}, 0)
	require.NoError(t, err)
	assert.Len(t, snaps, 2)

	limited, err := store.Query(ctx, "rate_limits", []Filter{
		{Field: "windowStart", Op: "<", Value: cutoff},
	}, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestInMemoryStore_BatchDeleteCountsOnlyExisting(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "rate_limits", "k1", Doc{"count": 1}))
	require.NoError(t, store.Set(ctx, "rate_limits", "k2", Doc{"count": 2}))

	deleted, err := store.BatchDelete(ctx, "rate_limits", []string{"k1", "k2", "k3"})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
}

func TestDocHelpers(t *testing.T) {
	doc := Doc{
		"int":    7,
		"int64":  int64(8),
		"float":  float64(9), // what JSON decoding produces
		"str":    "s",
		"flag":   true,
		"when":   "2025-06-01T12:00:00Z",
		"native": time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	assert.Equal(t, int64(7), Int64(doc, "int"))
	assert.Equal(t, int64(8), Int64(doc, "int64"))
	assert.Equal(t, int64(9), Int64(doc, "float"))
	assert.Equal(t, int64(0), Int64(doc, "missing"))
	assert.Equal(t, "s", String(doc, "str"))
	assert.True(t, Bool(doc, "flag"))
	assert.Equal(t, 2025, Time(doc, "when").Year())
	assert.Equal(t, 2025, Time(doc, "native").Year())
	assert.True(t, Time(doc, "missing").IsZero())
}
