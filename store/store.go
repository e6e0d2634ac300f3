// Package store is the key-value document storage used by the API: items
// addressed by a partition and sort key, queryable by partition or by a
// secondary index attribute.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
)

var (
	ErrNotFound     = errors.New("item not found")
	ErrMissingKey   = errors.New("item is missing a key attribute")
	ErrUnknownIndex = errors.New("unknown index")
	ErrKeyImmutable = errors.New("key attributes cannot be updated")
)

// Key addresses one item.
type Key struct {
	Partition string
	Sort      string
}

// Item is a document. Values are strings, numbers or booleans.
type Item map[string]any

// Increment in an Update patch adds to the stored number in the same write
// instead of overwriting it. A missing attribute counts as zero.
type Increment int64

// Schema names a table and its key and index attributes.
type Schema struct {
	Name         string
	PartitionKey string
	SortKey      string
	// Indexes maps an index name to the attribute it is keyed on.
	Indexes map[string]string
}

// Table is implemented by every storage backend.
type Table interface {
	Get(ctx context.Context, key Key) (Item, error)
	Put(ctx context.Context, item Item) error
	Update(ctx context.Context, key Key, patch Item) (Item, error)
	Delete(ctx context.Context, key Key) error
	// Query returns the items whose index attribute equals value. An empty
	// index queries the partition key.
	Query(ctx context.Context, index, value string) ([]Item, error)
}

// KeyOf extracts the key of item.
func (s Schema) KeyOf(item Item) (Key, error) {
	pk := item.String(s.PartitionKey)
	sk := item.String(s.SortKey)
	if pk == "" || sk == "" {
		return Key{}, fmt.Errorf("%w: %s/%s", ErrMissingKey, s.PartitionKey, s.SortKey)
	}
	return Key{Partition: pk, Sort: sk}, nil
}

// IndexAttribute resolves an index name; "" is the partition key.
func (s Schema) IndexAttribute(index string) (string, error) {
	if index == "" {
		return s.PartitionKey, nil
	}
	attr, ok := s.Indexes[index]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownIndex, index)
	}
	return attr, nil
}

// CheckPatch rejects patches that would move an item to another key.
func (s Schema) CheckPatch(patch Item) error {
	if _, ok := patch[s.PartitionKey]; ok {
		return ErrKeyImmutable
	}
	if _, ok := patch[s.SortKey]; ok {
		return ErrKeyImmutable
	}
	return nil
}

// SplitPatch separates plain assignments from increments.
func SplitPatch(patch Item) (set Item, add map[string]int64) {
	set = Item{}
	for k, v := range patch {
		if n, ok := v.(Increment); ok {
			if add == nil {
				add = map[string]int64{}
			}
			add[k] = int64(n)
			continue
		}
		set[k] = v
	}
	return set, add
}

// Clone returns a shallow copy.
func (i Item) Clone() Item {
	if i == nil {
		return nil
	}
	return maps.Clone(i)
}

func (i Item) String(k string) string {
	s, _ := i[k].(string)
	return s
}

func (i Item) Bool(k string) bool {
	b, _ := i[k].(bool)
	return b
}

// Int64 reads a number regardless of how the backend decoded it.
func (i Item) Int64(k string) int64 {
	switch v := i[k].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(math.Round(v))
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}
