// Package memstore is an in-process store.Table for development and tests.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/jrsteele09/synchub/store"
)

// Table is a thread-safe in-memory implementation of store.Table
type Table struct {
	mu     sync.RWMutex
	schema store.Schema
	items  map[store.Key]store.Item
}

var _ store.Table = (*Table)(nil)

func New(schema store.Schema) *Table {
	return &Table{
		schema: schema,
		items:  make(map[store.Key]store.Item),
	}
}

func (t *Table) Get(_ context.Context, key store.Key) (store.Item, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	item, ok := t.items[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	// Return a copy to prevent external modifications
	return item.Clone(), nil
}

func (t *Table) Put(_ context.Context, item store.Item) error {
	key, err := t.schema.KeyOf(item)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[key] = item.Clone()
	return nil
}

func (t *Table) Update(_ context.Context, key store.Key, patch store.Item) (store.Item, error) {
	if err := t.schema.CheckPatch(patch); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	item, ok := t.items[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	set, add := store.SplitPatch(patch)
	updated := item.Clone()
	for k, v := range set {
		updated[k] = v
	}
	for k, n := range add {
		updated[k] = item.Int64(k) + n
	}
	t.items[key] = updated
	return updated.Clone(), nil
}

func (t *Table) Delete(_ context.Context, key store.Key) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.items[key]; !ok {
		return store.ErrNotFound
	}
	delete(t.items, key)
	return nil
}

func (t *Table) Query(_ context.Context, index, value string) ([]store.Item, error) {
	attr, err := t.schema.IndexAttribute(index)
	if err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	var items []store.Item
	for _, item := range t.items {
		if item.String(attr) == value {
			items = append(items, item.Clone())
		}
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.String(t.schema.PartitionKey) != b.String(t.schema.PartitionKey) {
			return a.String(t.schema.PartitionKey) < b.String(t.schema.PartitionKey)
		}
		return a.String(t.schema.SortKey) < b.String(t.schema.SortKey)
	})
	return items, nil
}
