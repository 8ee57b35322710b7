// Package layered resolves one settings record from several scopes. Each
// scope is read through an inner adapter with the scope's binding options,
// and the results are merged strongest first. Saves go to the strongest
// scope only.
package layered

import (
	"context"
	"fmt"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/layering"
)

// Adapter implements settings.StorageAdapter over an inner adapter.
type Adapter struct {
	inner    settings.StorageAdapter
	defaults []layering.Scope
}

// New returns an adapter reading through inner. defaults are used when the
// context carries no scopes (see layering.WithScopes).
func New(inner settings.StorageAdapter, defaults ...layering.Scope) *Adapter {
	return &Adapter{inner: inner, defaults: append([]layering.Scope(nil), defaults...)}
}

func (a *Adapter) scopes(ctx context.Context) []layering.Scope {
	if scopes, ok := layering.ScopesFromContext(ctx); ok {
		return scopes
	}
	return a.defaults
}

// Resolve loads every scope and returns the merge with per-key provenance.
func (a *Adapter) Resolve(ctx context.Context, target settings.Target) (layering.Result, error) {
	scopes := a.scopes(ctx)
	if len(scopes) == 0 {
		data, err := a.inner.Load(ctx, target)
		if err != nil {
			return layering.Result{}, err
		}
		return layering.Result{Data: data}, nil
	}
	layers := make([]layering.Layer, 0, len(scopes))
	for _, scope := range scopes {
		data, err := a.inner.Load(ctx, scopedTarget(target, scope))
		if err != nil {
			return layering.Result{}, fmt.Errorf("layered: load %s for scope %s: %w", target.ShortName, scope, err)
		}
		layers = append(layers, layering.NewLayer(scope, data))
	}
	stack, err := layering.NewStack(layers...)
	if err != nil {
		return layering.Result{}, fmt.Errorf("layered: stack: %w", err)
	}
	return stack.Merge()
}

// Load implements settings.StorageAdapter.
func (a *Adapter) Load(ctx context.Context, target settings.Target) (*settings.NormalizedMap, error) {
	result, err := a.Resolve(ctx, target)
	if err != nil {
		return nil, err
	}
	if result.Data == nil {
		return settings.NewNormalizedMap(), nil
	}
	return result.Data, nil
}

// Save implements settings.StorageAdapter, writing to the strongest scope.
func (a *Adapter) Save(ctx context.Context, target settings.Target, data *settings.NormalizedMap) error {
	scopes := a.scopes(ctx)
	if len(scopes) == 0 {
		return a.inner.Save(ctx, target, data)
	}
	strongest := scopes[0]
	for _, scope := range scopes[1:] {
		if scope.Priority > strongest.Priority {
			strongest = scope
		}
	}
	return a.inner.Save(ctx, scopedTarget(target, strongest), data)
}

func scopedTarget(target settings.Target, scope layering.Scope) settings.Target {
	target.Options = scope.Options(target.Options)
	return target
}
