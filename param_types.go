package settings

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ParameterType converts between typed values held by an instance and the
// normalized values stored by adapters. Implementations must be pure: the
// same inputs always produce the same output and no I/O happens.
//
// The engine handles nil before calling a converter, so neither method sees a
// nil value.
type ParameterType interface {
	Name() string
	ToNormalized(value any, schema *Schema, param ParameterMetadata) (any, error)
	ToTyped(value any, schema *Schema, param ParameterMetadata) (any, error)
}

// ConvertFunc is one direction of a conversion.
type ConvertFunc func(value any, schema *Schema, param ParameterMetadata) (any, error)

type funcParameterType struct {
	name         string
	toNormalized ConvertFunc
	toTyped      ConvertFunc
}

// NewParameterType adapts a pair of functions to ParameterType.
func NewParameterType(name string, toNormalized, toTyped ConvertFunc) ParameterType {
	return funcParameterType{name: name, toNormalized: toNormalized, toTyped: toTyped}
}

func (t funcParameterType) Name() string { return t.name }

func (t funcParameterType) ToNormalized(value any, schema *Schema, param ParameterMetadata) (any, error) {
	return t.toNormalized(value, schema, param)
}

func (t funcParameterType) ToTyped(value any, schema *Schema, param ParameterMetadata) (any, error) {
	return t.toTyped(value, schema, param)
}

// Registry stores parameter types keyed by their case-insensitive name.
type Registry struct {
	mu    sync.RWMutex
	types map[string]ParameterType
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]ParameterType)}
}

// DefaultRegistry returns a fresh registry preloaded with the built-in types.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, t := range builtinTypes(r) {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

// Register stores t guarding against duplicates.
func (r *Registry) Register(t ParameterType) error {
	if t == nil {
		return fmt.Errorf("settings: parameter type is nil")
	}
	name := strings.TrimSpace(t.Name())
	if name == "" {
		return fmt.Errorf("settings: parameter type name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.types == nil {
		r.types = make(map[string]ParameterType)
	}
	key := strings.ToLower(name)
	if _, exists := r.types[key]; exists {
		return fmt.Errorf("settings: parameter type %q already registered", name)
	}
	r.types[key] = t
	return nil
}

// Lookup returns the type registered under name.
func (r *Registry) Lookup(name string) (ParameterType, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	t, ok := r.types[strings.ToLower(strings.TrimSpace(name))]
	r.mu.RUnlock()
	return t, ok
}

// Clone returns a shallow copy of the registry.
func (r *Registry) Clone() *Registry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &Registry{types: make(map[string]ParameterType, len(r.types))}
	for name, t := range r.types {
		clone.types[name] = t
	}
	return clone
}

// Names returns registered type names sorted alphabetically.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Normalize converts a typed parameter value into its normalized form.
func (r *Registry) Normalize(schema *Schema, param ParameterMetadata, value any) (any, error) {
	if value == nil || isNilPointer(value) {
		if param.Nullable {
			return nil, nil
		}
		return nil, &TypeMismatchError{Parameter: param.Name, Type: param.Type, Value: value, Err: fmt.Errorf("parameter is not nullable")}
	}
	t, ok := r.Lookup(param.Type)
	if !ok {
		return nil, schemaErrorf(schema.Identity(), param.Name, "unknown parameter type %q", param.Type)
	}
	out, err := t.ToNormalized(value, schema, param)
	if err != nil {
		return nil, asTypeMismatch(param, value, err)
	}
	normalized, err := NormalizeValue(out)
	if err != nil {
		return nil, asTypeMismatch(param, value, err)
	}
	return normalized, nil
}

// Denormalize converts a normalized value into the parameter's typed form.
func (r *Registry) Denormalize(schema *Schema, param ParameterMetadata, value any) (any, error) {
	if value == nil {
		if param.Nullable {
			return nil, nil
		}
		return nil, &NormalizationError{Identity: schema.Identity(), Parameter: param.Name, Type: param.Type, Err: fmt.Errorf("null stored for non-nullable parameter")}
	}
	t, ok := r.Lookup(param.Type)
	if !ok {
		return nil, schemaErrorf(schema.Identity(), param.Name, "unknown parameter type %q", param.Type)
	}
	out, err := t.ToTyped(value, schema, param)
	if err != nil {
		if _, ok := err.(*NormalizationError); ok {
			return nil, err
		}
		return nil, &NormalizationError{Identity: schema.Identity(), Parameter: param.Name, Type: param.Type, Value: value, Err: err}
	}
	return out, nil
}

// Canonicalize passes a typed value through both directions so the stored
// typed form is exactly what a later load would produce.
func (r *Registry) Canonicalize(schema *Schema, param ParameterMetadata, value any) (any, error) {
	normalized, err := r.Normalize(schema, param, value)
	if err != nil {
		return nil, err
	}
	typed, err := r.Denormalize(schema, param, normalized)
	if err != nil {
		return nil, &TypeMismatchError{Parameter: param.Name, Type: param.Type, Value: value, Err: err}
	}
	return typed, nil
}

func asTypeMismatch(param ParameterMetadata, value any, err error) error {
	if _, ok := err.(*TypeMismatchError); ok {
		return err
	}
	return &TypeMismatchError{Parameter: param.Name, Type: param.Type, Value: value, Err: err}
}
