package settings

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/stoewer/go-strcase"
)

// ResetHook re-applies computed defaults. It runs after declared defaults are
// applied, both while an instance is constructed and on an explicit Reset.
type ResetHook func(ctx context.Context, inst *Instance) error

// Binding names a storage adapter and the opaque options handed to it.
type Binding struct {
	Adapter string         `json:"adapter" yaml:"adapter"`
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

func (b Binding) clone() Binding {
	return Binding{Adapter: b.Adapter, Options: copyMetadata(b.Options)}
}

// ParameterDecl is the raw declaration of one typed parameter.
type ParameterDecl struct {
	Name        string
	Type        string
	Key         string
	Default     any
	Nullable    *bool
	AcceptsNull bool
	Groups      []string
	Options     map[string]any
	Label       string
	Description string
}

// EmbedDecl is the raw declaration of an embedded settings property.
type EmbedDecl struct {
	Name   string
	Target string
	Key    string
	Groups []string
}

// Declaration is everything the schema builder needs to know about one
// settings class.
type Declaration struct {
	Identity   string
	Name       string
	Storage    Binding
	Version    int
	Migration  string
	Groups     []string
	Parameters []ParameterDecl
	Embeds     []EmbedDecl
	Reset      ResetHook
}

// DeclarationSource produces raw declarations by identity.
type DeclarationSource interface {
	Declaration(identity string) (Declaration, error)
	Identities() []string
}

// Catalog is an in-memory DeclarationSource populated by explicit
// registration. It is safe for concurrent use.
type Catalog struct {
	mu           sync.RWMutex
	declarations map[string]Declaration
	order        []string
}

// NewCatalog returns a catalog holding decls.
func NewCatalog(decls ...Declaration) (*Catalog, error) {
	c := &Catalog{declarations: map[string]Declaration{}}
	for _, decl := range decls {
		if err := c.Register(decl); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustCatalog is NewCatalog that panics on error, handy for package-level
// registration.
func MustCatalog(decls ...Declaration) *Catalog {
	c, err := NewCatalog(decls...)
	if err != nil {
		panic(err)
	}
	return c
}

// Register adds decl, rejecting empty or duplicate identities.
func (c *Catalog) Register(decl Declaration) error {
	identity := strings.TrimSpace(decl.Identity)
	if identity == "" {
		return &SchemaError{Err: fmt.Errorf("declaration identity must not be empty")}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.declarations == nil {
		c.declarations = map[string]Declaration{}
	}
	if _, exists := c.declarations[identity]; exists {
		return schemaErrorf(identity, "", "declaration already registered")
	}
	decl.Identity = identity
	c.declarations[identity] = decl
	c.order = append(c.order, identity)
	return nil
}

// Declaration implements DeclarationSource.
func (c *Catalog) Declaration(identity string) (Declaration, error) {
	c.mu.RLock()
	decl, ok := c.declarations[identity]
	c.mu.RUnlock()
	if !ok {
		return Declaration{}, fmt.Errorf("%w: %q", ErrUnknownDeclaration, identity)
	}
	return decl, nil
}

// Identities implements DeclarationSource, returning registration order.
func (c *Catalog) Identities() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// ShortName returns the declared name or derives one from the identity:
// the last path segment, minus a trailing "Settings", in snake_case.
func ShortName(decl Declaration) string {
	if name := strings.TrimSpace(decl.Name); name != "" {
		return name
	}
	return deriveShortName(decl.Identity)
}

func deriveShortName(identity string) string {
	segment := identity
	if idx := strings.LastIndexAny(segment, "./\\"); idx >= 0 {
		segment = segment[idx+1:]
	}
	if trimmed := strings.TrimSuffix(segment, "Settings"); trimmed != "" {
		segment = trimmed
	}
	return strcase.SnakeCase(segment)
}

func sortedGroups(groups []string) []string {
	if len(groups) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(groups))
	out := make([]string, 0, len(groups))
	for _, group := range groups {
		group = strings.TrimSpace(group)
		if group == "" {
			continue
		}
		if _, ok := seen[group]; ok {
			continue
		}
		seen[group] = struct{}{}
		out = append(out, group)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

func copyMetadata(origin map[string]any) map[string]any {
	if len(origin) == 0 {
		return nil
	}
	out := make(map[string]any, len(origin))
	for key, value := range origin {
		out[key] = cloneNormalized(value)
	}
	return out
}
