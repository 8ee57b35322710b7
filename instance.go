package settings

import (
	"context"
	"fmt"

	"github.com/goliatone/go-settings/internal/hydrate"
)

// Instance is a live settings object. Instances are created only by a
// UnitOfWork; they own their typed parameter values and resolve embedded
// settings lazily through the unit's instance table.
type Instance struct {
	uow     *UnitOfWork
	schema  *Schema
	key     string
	values  map[string]any
	unknown *NormalizedMap
	report  LoadReport
	changed map[string]struct{}
	dirty   bool
	ready   bool
}

func newInstance(uow *UnitOfWork, schema *Schema, key string) *Instance {
	return &Instance{
		uow:     uow,
		schema:  schema,
		key:     key,
		values:  make(map[string]any, len(schema.parameters)),
		unknown: NewNormalizedMap(),
		report:  LoadReport{Identity: schema.Identity()},
		changed: map[string]struct{}{},
	}
}

// Schema returns the schema the instance conforms to.
func (i *Instance) Schema() *Schema {
	return i.schema
}

// Key returns the instance key, empty for the identity-wide instance.
func (i *Instance) Key() string {
	return i.key
}

// Ready reports whether loading finished. Instances reached while their own
// load is still running are placeholders.
func (i *Instance) Ready() bool {
	return i.ready
}

// Get returns the typed value of parameter name.
func (i *Instance) Get(name string) (any, error) {
	if _, ok := i.schema.Parameter(name); !ok {
		return nil, fmt.Errorf("%w: %q on %q", ErrUnknownParameter, name, i.schema.Identity())
	}
	return i.values[name], nil
}

// Set canonicalizes value through the parameter's converter and stores it.
// A value the converter rejects leaves the instance unchanged.
func (i *Instance) Set(name string, value any) error {
	param, ok := i.schema.Parameter(name)
	if !ok {
		return fmt.Errorf("%w: %q on %q", ErrUnknownParameter, name, i.schema.Identity())
	}
	typed, err := i.registry().Canonicalize(i.schema, param, value)
	if err != nil {
		return err
	}
	i.values[name] = typed
	i.changed[name] = struct{}{}
	i.dirty = true
	return nil
}

// Values returns the typed parameter values keyed by parameter name.
func (i *Instance) Values() map[string]any {
	out := make(map[string]any, len(i.schema.parameters))
	for _, p := range i.schema.parameters {
		out[p.Name] = i.values[p.Name]
	}
	return out
}

// Normalized converts the parameters to their storage form, keyed by storage
// key in declaration order. Preserved unknown keys follow, then the version
// marker when the schema is versioned.
func (i *Instance) Normalized() (*NormalizedMap, error) {
	out := NewNormalizedMap()
	for _, p := range i.schema.parameters {
		value, err := i.registry().Normalize(i.schema, p, i.values[p.Name])
		if err != nil {
			return nil, err
		}
		out.set(p.Key, value)
	}
	i.unknown.Range(func(key string, value any) bool {
		out.set(key, cloneNormalized(value))
		return true
	})
	if version, ok := i.schema.Version(); ok {
		out.WithVersion(version)
	}
	return out, nil
}

// Embedded resolves the embedded instance declared under name. The first
// call loads it; later calls return the same instance for the unit of work.
func (i *Instance) Embedded(ctx context.Context, name string) (*Instance, error) {
	embed, ok := i.schema.Embed(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q on %q", ErrUnknownEmbed, name, i.schema.Identity())
	}
	return i.uow.ResolveEmbedded(ctx, i, embed)
}

// Unknown returns a copy of the loaded keys that match no parameter or embed.
func (i *Instance) Unknown() *NormalizedMap {
	return i.unknown.Clone()
}

// Dirty reports whether the instance changed since it was loaded or saved.
func (i *Instance) Dirty() bool {
	return i.dirty
}

// Report returns what the migration engine did while loading.
func (i *Instance) Report() LoadReport {
	return i.report
}

// DecodeInto binds the typed values to out, a pointer to a struct whose
// fields carry `settings:"name"` tags.
func (i *Instance) DecodeInto(out any) error {
	return hydrate.Into(i.hydrateContext(), i.Values(), out)
}

// Decode binds the instance's typed values into a new T.
func Decode[T any](inst *Instance, opts ...hydrate.DecoderOption[T]) (T, error) {
	if inst == nil {
		var zero T
		return zero, fmt.Errorf("settings: decode nil instance")
	}
	return hydrate.NewDecoder[T](opts...).Decode(inst.hydrateContext(), inst.Values())
}

// Value returns parameter name as T.
func Value[T any](inst *Instance, name string) (T, error) {
	var zero T
	if inst == nil {
		return zero, fmt.Errorf("settings: read %q from nil instance", name)
	}
	raw, err := inst.Get(name)
	if err != nil {
		return zero, err
	}
	if raw == nil {
		return zero, nil
	}
	typed, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("settings: parameter %q holds %T, not %T", name, raw, zero)
	}
	return typed, nil
}

func (i *Instance) hydrateContext() hydrate.Context {
	return hydrate.Context{Identity: i.schema.Identity(), InstanceKey: i.key}
}

func (i *Instance) registry() *Registry {
	return i.uow.manager.cfg.registry
}

func (i *Instance) applyDefaults() {
	for _, p := range i.schema.parameters {
		i.values[p.Name] = cloneNormalized(p.Default)
	}
}

// overlay denormalizes the loaded map on top of the defaults. Keys the schema
// does not manage are kept aside so Save can write them back.
func (i *Instance) overlay(data *NormalizedMap) error {
	managed := make(map[string]struct{}, len(i.schema.parameters)+len(i.schema.embeds)+1)
	managed[VersionKey] = struct{}{}
	for _, p := range i.schema.parameters {
		managed[p.Key] = struct{}{}
		raw, ok := data.Get(p.Key)
		if !ok {
			continue
		}
		typed, err := i.registry().Denormalize(i.schema, p, raw)
		if err != nil {
			return err
		}
		i.values[p.Name] = typed
	}
	for _, e := range i.schema.embeds {
		managed[e.Key] = struct{}{}
	}
	unknown := NewNormalizedMap()
	data.Range(func(key string, value any) bool {
		if _, ok := managed[key]; !ok {
			unknown.set(key, cloneNormalized(value))
		}
		return true
	})
	i.unknown = unknown
	return nil
}

func (i *Instance) changedNames() []string {
	if len(i.changed) == 0 {
		return nil
	}
	out := make([]string, 0, len(i.changed))
	for _, p := range i.schema.parameters {
		if _, ok := i.changed[p.Name]; ok {
			out = append(out, p.Name)
		}
	}
	return out
}

func (i *Instance) markClean() {
	i.dirty = false
	i.changed = map[string]struct{}{}
}
