package settings

import lru "github.com/hashicorp/golang-lru/v2"

// ProgramCache stores compiled expression programs keyed by expression strings.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// WithProgramCache registers a program cache used by the default evaluator.
func WithProgramCache(cache ProgramCache) Option {
	return func(cfg *managerConfig) {
		cfg.programCache = cache
	}
}

type lruProgramCache struct {
	cache *lru.Cache[string, any]
}

// NewLRUProgramCache returns a ProgramCache bounded to size entries. It is
// safe for concurrent use.
func NewLRUProgramCache(size int) (ProgramCache, error) {
	cache, err := lru.New[string, any](size)
	if err != nil {
		return nil, err
	}
	return lruProgramCache{cache: cache}, nil
}

func (c lruProgramCache) Get(key string) (any, bool) {
	return c.cache.Get(key)
}

func (c lruProgramCache) Set(key string, value any) {
	c.cache.Add(key, value)
}
