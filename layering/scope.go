package layering

import (
	"context"
	"fmt"
)

// Well-known scope names. Stored keys for the scoped names need a matching
// "<name>_id" metadata entry.
const (
	ScopeSystem = "system"
	ScopeTenant = "tenant"
	ScopeOrg    = "org"
	ScopeTeam   = "team"
	ScopeUser   = "user"
)

// Default priorities for the well-known scopes. Higher values are stronger.
const (
	PrioritySystem = 100
	PriorityTenant = 200
	PriorityOrg    = 300
	PriorityTeam   = 400
	PriorityUser   = 500
)

// Scope models a named precedence bucket (system, tenant, user, etc.). Higher
// priority values represent stronger layers.
type Scope struct {
	Name     string
	Label    string
	Priority int
	Metadata map[string]any
}

// ScopeOption configures metadata on Scope creation.
type ScopeOption func(*scopeConfig)

type scopeConfig struct {
	label    string
	metadata map[string]any
}

// WithScopeLabel sets a human-friendly label on the scope.
func WithScopeLabel(label string) ScopeOption {
	return func(cfg *scopeConfig) {
		cfg.label = label
	}
}

// WithScopeMetadata attaches metadata to the scope. The map is copied so the
// resulting Scope stays immutable even if the caller mutates their reference.
func WithScopeMetadata(metadata map[string]any) ScopeOption {
	return func(cfg *scopeConfig) {
		if len(metadata) == 0 {
			return
		}
		cfg.metadata = copyMetadata(metadata)
	}
}

// NewScope builds a Scope. Validation is deferred to Stack construction so
// callers can assemble scopes before deciding precedence.
func NewScope(name string, priority int, opts ...ScopeOption) Scope {
	cfg := scopeConfig{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	return Scope{
		Name:     name,
		Label:    cfg.label,
		Priority: priority,
		Metadata: copyMetadata(cfg.metadata),
	}
}

// System returns the weakest well-known scope.
func System() Scope {
	return NewScope(ScopeSystem, PrioritySystem)
}

// Tenant returns the tenant scope for id.
func Tenant(id string) Scope { return scoped(ScopeTenant, PriorityTenant, id) }

// Org returns the organization scope for id.
func Org(id string) Scope { return scoped(ScopeOrg, PriorityOrg, id) }

// Team returns the team scope for id.
func Team(id string) Scope { return scoped(ScopeTeam, PriorityTeam, id) }

// User returns the user scope for id.
func User(id string) Scope { return scoped(ScopeUser, PriorityUser, id) }

func scoped(name string, priority int, id string) Scope {
	return NewScope(name, priority, WithScopeMetadata(map[string]any{name + "_id": id}))
}

// ID returns the "<name>_id" metadata entry, if any.
func (s Scope) ID() string {
	id, _ := s.Metadata[s.Name+"_id"].(string)
	return id
}

// Options returns the storage binding options that address this scope: the
// scope metadata plus "scope": name.
func (s Scope) Options(base map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(s.Metadata)+1)
	for key, value := range base {
		out[key] = value
	}
	for key, value := range s.Metadata {
		out[key] = value
	}
	out["scope"] = s.Name
	return out
}

func (s Scope) String() string {
	if id := s.ID(); id != "" {
		return fmt.Sprintf("%s/%s", s.Name, id)
	}
	return s.Name
}

// clone returns a copy of s, ensuring Metadata is detached from the original.
func (s Scope) clone() Scope {
	return Scope{
		Name:     s.Name,
		Label:    s.Label,
		Priority: s.Priority,
		Metadata: copyMetadata(s.Metadata),
	}
}

type scopesKey struct{}

// WithScopes attaches the scope chain for the current request to ctx.
func WithScopes(ctx context.Context, scopes ...Scope) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	cloned := make([]Scope, len(scopes))
	for i, scope := range scopes {
		cloned[i] = scope.clone()
	}
	return context.WithValue(ctx, scopesKey{}, cloned)
}

// ScopesFromContext returns the scopes attached with WithScopes.
func ScopesFromContext(ctx context.Context) ([]Scope, bool) {
	if ctx == nil {
		return nil, false
	}
	scopes, ok := ctx.Value(scopesKey{}).([]Scope)
	if !ok || len(scopes) == 0 {
		return nil, false
	}
	return scopes, true
}

func copyMetadata(origin map[string]any) map[string]any {
	if len(origin) == 0 {
		return nil
	}
	out := make(map[string]any, len(origin))
	for key, value := range origin {
		out[key] = value
	}
	return out
}
