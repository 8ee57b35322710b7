// Package cached puts an LRU read-through cache in front of another settings
// storage adapter. Saves write through and refresh the cached copy.
package cached

import (
	"context"
	"fmt"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/pkg/storage"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSize is the number of records kept when no size is given.
const DefaultSize = 256

// Adapter implements settings.StorageAdapter.
type Adapter struct {
	inner settings.StorageAdapter
	cache *lru.Cache[string, *settings.NormalizedMap]
}

// New wraps inner with a cache holding up to size records.
func New(inner settings.StorageAdapter, size int) (*Adapter, error) {
	if inner == nil {
		return nil, fmt.Errorf("cached: inner adapter is required")
	}
	if size <= 0 {
		size = DefaultSize
	}
	cache, err := lru.New[string, *settings.NormalizedMap](size)
	if err != nil {
		return nil, fmt.Errorf("cached: %w", err)
	}
	return &Adapter{inner: inner, cache: cache}, nil
}

// Load implements settings.StorageAdapter.
func (a *Adapter) Load(ctx context.Context, target settings.Target) (*settings.NormalizedMap, error) {
	key, err := storage.Key(target)
	if err != nil {
		return nil, err
	}
	if data, ok := a.cache.Get(key); ok {
		return data.Clone(), nil
	}
	data, err := a.inner.Load(ctx, target)
	if err != nil {
		return nil, err
	}
	a.cache.Add(key, data.Clone())
	return data, nil
}

// Save implements settings.StorageAdapter. A failed write drops the cached
// entry so the next load reads the inner adapter again.
func (a *Adapter) Save(ctx context.Context, target settings.Target, data *settings.NormalizedMap) error {
	key, err := storage.Key(target)
	if err != nil {
		return err
	}
	if err := a.inner.Save(ctx, target, data); err != nil {
		a.cache.Remove(key)
		return err
	}
	a.cache.Add(key, data.Clone())
	return nil
}

// Invalidate drops the cached copy for target.
func (a *Adapter) Invalidate(target settings.Target) error {
	key, err := storage.Key(target)
	if err != nil {
		return err
	}
	a.cache.Remove(key)
	return nil
}

// Purge empties the cache.
func (a *Adapter) Purge() {
	a.cache.Purge()
}

// Len reports the number of cached records.
func (a *Adapter) Len() int {
	return a.cache.Len()
}
