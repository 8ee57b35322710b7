// Package memory is an in-memory settings.StorageAdapter intended for tests
// and examples. It keys records with storage.Key and makes no persistence
// assumptions beyond that.
package memory

import (
	"context"
	"sort"
	"sync"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/pkg/storage"
)

// Adapter stores normalized maps in a map guarded by a RWMutex.
type Adapter struct {
	mu      sync.RWMutex
	records map[string]*settings.NormalizedMap
	loads   int
	saves   int
}

// New returns an empty adapter.
func New() *Adapter {
	return &Adapter{records: map[string]*settings.NormalizedMap{}}
}

// Load implements settings.StorageAdapter.
func (a *Adapter) Load(_ context.Context, target settings.Target) (*settings.NormalizedMap, error) {
	key, err := storage.Key(target)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loads++
	record, ok := a.records[key]
	if !ok {
		return settings.NewNormalizedMap(), nil
	}
	return record.Clone(), nil
}

// Save implements settings.StorageAdapter.
func (a *Adapter) Save(_ context.Context, target settings.Target, data *settings.NormalizedMap) error {
	key, err := storage.Key(target)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saves++
	a.records[key] = data.Clone()
	return nil
}

// Put seeds key directly, bypassing target resolution.
func (a *Adapter) Put(key string, data *settings.NormalizedMap) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records[key] = data.Clone()
}

// Get returns a copy of the record stored under key.
func (a *Adapter) Get(key string) (*settings.NormalizedMap, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	record, ok := a.records[key]
	if !ok {
		return nil, false
	}
	return record.Clone(), true
}

// Keys lists stored keys in lexical order.
func (a *Adapter) Keys() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	keys := make([]string, 0, len(a.records))
	for key := range a.records {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Loads reports how many Load calls reached the adapter.
func (a *Adapter) Loads() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loads
}

// Saves reports how many Save calls reached the adapter.
func (a *Adapter) Saves() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.saves
}
