package settings

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// mapStore is an in-memory StorageAdapter keyed by identity and instance key.
type mapStore struct {
	mu      sync.Mutex
	data    map[string]*NormalizedMap
	loads   int
	saves   int
	loadErr error
	saveErr error
}

func newMapStore() *mapStore {
	return &mapStore{data: map[string]*NormalizedMap{}}
}

func storeKey(target Target) string {
	if target.InstanceKey == "" {
		return target.Identity
	}
	return target.Identity + "#" + target.InstanceKey
}

func (s *mapStore) Load(_ context.Context, target Target) (*NormalizedMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if data, ok := s.data[storeKey(target)]; ok {
		return data.Clone(), nil
	}
	return NewNormalizedMap(), nil
}

func (s *mapStore) Save(_ context.Context, target Target, data *NormalizedMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.data[storeKey(target)] = data.Clone()
	return nil
}

func (s *mapStore) put(identity string, values map[string]any) {
	data := NewNormalizedMap()
	for _, key := range sortedKeys(values) {
		if err := data.Set(key, values[key]); err != nil {
			panic(err)
		}
	}
	s.mu.Lock()
	s.data[identity] = data
	s.mu.Unlock()
}

func (s *mapStore) get(key string) *NormalizedMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key].Clone()
}

func sortedKeys(values map[string]any) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// countingMigration records every call and delegates to fn.
type countingMigration struct {
	calls int
	fn    func(data *NormalizedMap, from, to int) (*NormalizedMap, error)
}

func (m *countingMigration) Migrate(_ context.Context, data *NormalizedMap, from, to int) (*NormalizedMap, error) {
	m.calls++
	if m.fn == nil {
		return nil, errors.New("no migration configured")
	}
	return m.fn(data, from, to)
}

func newTestManager(decls []Declaration, opts ...Option) (*Manager, *mapStore, error) {
	store := newMapStore()
	catalog, err := NewCatalog(decls...)
	if err != nil {
		return nil, nil, err
	}
	manager, err := NewManager(catalog, append([]Option{WithDefaultAdapter(store)}, opts...)...)
	return manager, store, err
}
