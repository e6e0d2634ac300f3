package memstore_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/synchub/store"
	"github.com/jrsteele09/synchub/store/memstore"
	"github.com/jrsteele09/synchub/store/storetest"
	"github.com/stretchr/testify/require"
)

func TestTable(t *testing.T) {
	storetest.RunTableTests(t, func(t *testing.T) store.Table {
		return memstore.New(storetest.Schema)
	})
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	tbl := memstore.New(storetest.Schema)
	require.NoError(t, tbl.Put(ctx, store.Item{"tenant_id": "T1", "setting_id": "s1", "name": "a"}))

	got, err := tbl.Get(ctx, store.Key{Partition: "T1", Sort: "s1"})
	require.NoError(t, err)
	got["name"] = "mutated"

	again, err := tbl.Get(ctx, store.Key{Partition: "T1", Sort: "s1"})
	require.NoError(t, err)
	require.Equal(t, "a", again.String("name"))
}
