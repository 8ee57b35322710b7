package settings

import (
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// SchemaCache memoizes built schemas by identity for the life of the process.
// Concurrent misses for one identity collapse into a single build. It is safe
// for concurrent use.
type SchemaCache struct {
	builder Builder

	mu      sync.RWMutex
	schemas map[string]*Schema
	names   map[string]string
	indexed bool
	// generation advances on Clear; builds started under an older
	// generation return their result without memoizing it.
	generation uint64

	flight singleflight.Group
}

// NewSchemaCache wraps builder with memoization.
func NewSchemaCache(builder Builder) *SchemaCache {
	return &SchemaCache{
		builder: builder,
		schemas: map[string]*Schema{},
	}
}

// Get returns the cached schema for identity, building it on first use.
func (c *SchemaCache) Get(identity string) (*Schema, error) {
	c.mu.RLock()
	s, ok := c.schemas[identity]
	gen := c.generation
	c.mu.RUnlock()
	if ok {
		return s, nil
	}
	v, err, _ := c.flight.Do(flightKey(gen, identity), func() (any, error) {
		c.mu.RLock()
		cached, ok := c.schemas[identity]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}
		if err := c.index(); err != nil {
			return nil, err
		}
		built, err := c.builder.Build(identity)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.generation == gen {
			c.schemas[identity] = built
		}
		c.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Schema), nil
}

// Build bypasses memoization and always rebuilds.
func (c *SchemaCache) Build(identity string) (*Schema, error) {
	return c.builder.Build(identity)
}

// Resolve maps ref, either an identity or a short name, to an identity.
func (c *SchemaCache) Resolve(ref string) (string, error) {
	return c.resolve(ref, false)
}

// resolve looks ref up in the memoized short-name index, or in one built
// from the current declarations when fresh is set.
func (c *SchemaCache) resolve(ref string, fresh bool) (string, error) {
	if _, err := c.builder.Source.Declaration(ref); err == nil {
		return ref, nil
	}
	var names map[string]string
	if fresh {
		built, err := c.buildIndex()
		if err != nil {
			return "", err
		}
		names = built
	} else {
		if err := c.index(); err != nil {
			return "", err
		}
		c.mu.RLock()
		names = c.names
		c.mu.RUnlock()
	}
	identity, ok := names[ref]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDeclaration, ref)
	}
	return identity, nil
}

// index memoizes the short-name table.
func (c *SchemaCache) index() error {
	c.mu.RLock()
	indexed := c.indexed
	gen := c.generation
	c.mu.RUnlock()
	if indexed {
		return nil
	}
	_, err, _ := c.flight.Do(flightKey(gen, "\x00names"), func() (any, error) {
		names, err := c.buildIndex()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.generation == gen {
			c.names = names
			c.indexed = true
		}
		c.mu.Unlock()
		return nil, nil
	})
	return err
}

// buildIndex reads the short-name table from the declaration source. A name
// shared by two identities is a schema error.
func (c *SchemaCache) buildIndex() (map[string]string, error) {
	names := map[string]string{}
	for _, identity := range c.builder.Source.Identities() {
		decl, err := c.builder.Source.Declaration(identity)
		if err != nil {
			return nil, &SchemaError{Identity: identity, Err: err}
		}
		name := ShortName(decl)
		if other, taken := names[name]; taken && other != identity {
			return nil, schemaErrorf(identity, "", "short name %q collides with %q", name, other)
		}
		names[name] = identity
	}
	return names, nil
}

func flightKey(gen uint64, key string) string {
	return strconv.FormatUint(gen, 10) + "/" + key
}

// Len returns the number of memoized schemas.
func (c *SchemaCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.schemas)
}

// Clear drops every memoized schema and the short-name index. Builds still
// running keep their result to themselves.
func (c *SchemaCache) Clear() {
	c.mu.Lock()
	c.schemas = map[string]*Schema{}
	c.names = nil
	c.indexed = false
	c.generation++
	c.mu.Unlock()
}
