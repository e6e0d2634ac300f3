// Package storetest holds behaviour tests every store.Table backend must pass.
package storetest

import (
	"context"
	"testing"

	"github.com/jrsteele09/synchub/store"
	"github.com/stretchr/testify/require"
)

// Schema is the table layout the behaviour tests use.
var Schema = store.Schema{
	Name:         "storetest",
	PartitionKey: "tenant_id",
	SortKey:      "setting_id",
	Indexes:      map[string]string{"visibility-index": "visibility"},
}

// RunTableTests exercises newTable's result against the store.Table contract.
// newTable must return an empty table for Schema.
func RunTableTests(t *testing.T, newTable func(t *testing.T) store.Table) {
	t.Helper()
	ctx := context.Background()

	item := func(tenant, id, visibility string) store.Item {
		return store.Item{
			"tenant_id":  tenant,
			"setting_id": id,
			"name":       "theme",
			"visibility": visibility,
			"version":    int64(1),
			"enabled":    true,
		}
	}

	t.Run("get missing", func(t *testing.T) {
		tbl := newTable(t)
		_, err := tbl.Get(ctx, store.Key{Partition: "T1", Sort: "nope"})
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("put get", func(t *testing.T) {
		tbl := newTable(t)
		require.NoError(t, tbl.Put(ctx, item("T1", "s1", "public")))

		got, err := tbl.Get(ctx, store.Key{Partition: "T1", Sort: "s1"})
		require.NoError(t, err)
		require.Equal(t, "theme", got.String("name"))
		require.Equal(t, int64(1), got.Int64("version"))
		require.True(t, got.Bool("enabled"))
	})

	t.Run("put requires key", func(t *testing.T) {
		tbl := newTable(t)
		require.ErrorIs(t, tbl.Put(ctx, store.Item{"tenant_id": "T1"}), store.ErrMissingKey)
	})

	t.Run("update", func(t *testing.T) {
		tbl := newTable(t)
		require.NoError(t, tbl.Put(ctx, item("T1", "s1", "public")))

		got, err := tbl.Update(ctx, store.Key{Partition: "T1", Sort: "s1"}, store.Item{"name": "font", "version": int64(2)})
		require.NoError(t, err)
		require.Equal(t, "font", got.String("name"))
		require.Equal(t, int64(2), got.Int64("version"))
		require.Equal(t, "public", got.String("visibility"))

		_, err = tbl.Update(ctx, store.Key{Partition: "T1", Sort: "missing"}, store.Item{"name": "x"})
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = tbl.Update(ctx, store.Key{Partition: "T1", Sort: "s1"}, store.Item{"tenant_id": "T2"})
		require.ErrorIs(t, err, store.ErrKeyImmutable)
	})

	t.Run("update increments", func(t *testing.T) {
		tbl := newTable(t)
		require.NoError(t, tbl.Put(ctx, item("T1", "s1", "public")))
		key := store.Key{Partition: "T1", Sort: "s1"}

		got, err := tbl.Update(ctx, key, store.Item{"name": "font", "version": store.Increment(1)})
		require.NoError(t, err)
		require.Equal(t, "font", got.String("name"))
		require.Equal(t, int64(2), got.Int64("version"))

		got, err = tbl.Update(ctx, key, store.Item{"version": store.Increment(1), "reads": store.Increment(3)})
		require.NoError(t, err)
		require.Equal(t, int64(3), got.Int64("version"))
		require.Equal(t, int64(3), got.Int64("reads"))
	})

	t.Run("delete", func(t *testing.T) {
		tbl := newTable(t)
		require.NoError(t, tbl.Put(ctx, item("T1", "s1", "public")))
		require.NoError(t, tbl.Delete(ctx, store.Key{Partition: "T1", Sort: "s1"}))
		require.ErrorIs(t, tbl.Delete(ctx, store.Key{Partition: "T1", Sort: "s1"}), store.ErrNotFound)
	})

	t.Run("query partition and index", func(t *testing.T) {
		tbl := newTable(t)
		require.NoError(t, tbl.Put(ctx, item("T1", "s1", "public")))
		require.NoError(t, tbl.Put(ctx, item("T1", "s2", "private")))
		require.NoError(t, tbl.Put(ctx, item("T2", "s3", "public")))

		byTenant, err := tbl.Query(ctx, "", "T1")
		require.NoError(t, err)
		require.Len(t, byTenant, 2)

		public, err := tbl.Query(ctx, "visibility-index", "public")
		require.NoError(t, err)
		require.Len(t, public, 2)

		_, err = tbl.Query(ctx, "no-such-index", "x")
		require.ErrorIs(t, err, store.ErrUnknownIndex)
	})
}
