package settings

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/shopspring/decimal"
)

// Function represents a callable registered against evaluators.
type Function func(args ...any) (any, error)

// FunctionRegistry stores custom functions keyed by lowercased name.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

// NewFunctionRegistry constructs an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		functions: make(map[string]Function),
	}
}

// SettingsFunctions returns a registry with the helpers the default evaluator
// carries. They read normalized values the way the parameter converters do:
//
//	seconds(d)                 duration string -> float seconds
//	semver_compare(a, b)       -1, 0 or 1
//	decimal_compare(a, b)      -1, 0 or 1
func SettingsFunctions() *FunctionRegistry {
	r := NewFunctionRegistry()
	r.mustRegister("seconds", secondsFunction)
	r.mustRegister("semver_compare", semverCompareFunction)
	r.mustRegister("decimal_compare", decimalCompareFunction)
	return r
}

// Register stores fn under name guarding against duplicates.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	if fn == nil {
		return fmt.Errorf("settings: function %q is nil", name)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("settings: function name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function)
	}
	key := strings.ToLower(name)
	if _, exists := r.functions[key]; exists {
		return fmt.Errorf("settings: function %q already registered", name)
	}
	r.functions[key] = fn
	return nil
}

func (r *FunctionRegistry) mustRegister(name string, fn Function) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Merge copies other's functions into r. A name present in both is an error
// and leaves r unchanged.
func (r *FunctionRegistry) Merge(other *FunctionRegistry) error {
	if other == nil {
		return nil
	}
	incoming := other.Clone()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function)
	}
	for name := range incoming.functions {
		if _, exists := r.functions[name]; exists {
			return fmt.Errorf("settings: function %q already registered", name)
		}
	}
	for name, fn := range incoming.functions {
		r.functions[name] = fn
	}
	return nil
}

// Clone returns a shallow copy of the registry.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &FunctionRegistry{
		functions: make(map[string]Function, len(r.functions)),
	}
	for name, fn := range r.functions {
		clone.functions[name] = fn
	}
	return clone
}

// Call executes the function registered for name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("settings: function registry is nil")
	}
	r.mu.RLock()
	fn := r.functions[strings.ToLower(name)]
	r.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("settings: function %q not registered", name)
	}
	return fn(args...)
}

// Names returns registered function names sorted alphabetically.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithFunctionRegistry adds registry's functions to the default evaluator.
func WithFunctionRegistry(registry *FunctionRegistry) Option {
	return func(cfg *managerConfig) {
		if registry == nil {
			return
		}
		cfg.addFunctions(registry)
	}
}

// WithCustomFunction registers fn under name for the default evaluator. A
// duplicate name fails NewManager.
func WithCustomFunction(name string, fn Function) Option {
	return func(cfg *managerConfig) {
		single := NewFunctionRegistry()
		if err := single.Register(name, fn); err != nil {
			cfg.fail(err)
			return
		}
		cfg.addFunctions(single)
	}
}

func (cfg *managerConfig) addFunctions(registry *FunctionRegistry) {
	if cfg.functions == nil {
		cfg.functions = SettingsFunctions()
	}
	if err := cfg.functions.Merge(registry); err != nil {
		cfg.fail(err)
	}
}

func argumentCount(name string, args []any, want int) error {
	if len(args) != want {
		return fmt.Errorf("%s expects %d arguments, got %d", name, want, len(args))
	}
	return nil
}

func secondsFunction(args ...any) (any, error) {
	if err := argumentCount("seconds", args, 1); err != nil {
		return nil, err
	}
	typed, err := durationToTyped(args[0], nil, ParameterMetadata{})
	if err != nil {
		return nil, fmt.Errorf("seconds: %w", err)
	}
	return typed.(time.Duration).Seconds(), nil
}

func semverCompareFunction(args ...any) (any, error) {
	if err := argumentCount("semver_compare", args, 2); err != nil {
		return nil, err
	}
	versions := make([]*semver.Version, 2)
	for i, arg := range args {
		typed, err := semverToTyped(arg, nil, ParameterMetadata{})
		if err != nil {
			return nil, fmt.Errorf("semver_compare: %w", err)
		}
		versions[i] = typed.(*semver.Version)
	}
	return int64(versions[0].Compare(versions[1])), nil
}

func decimalCompareFunction(args ...any) (any, error) {
	if err := argumentCount("decimal_compare", args, 2); err != nil {
		return nil, err
	}
	values := make([]decimal.Decimal, 2)
	for i, arg := range args {
		typed, err := decimalToTyped(arg, nil, ParameterMetadata{})
		if err != nil {
			return nil, fmt.Errorf("decimal_compare: %w", err)
		}
		values[i] = typed.(decimal.Decimal)
	}
	return int64(values[0].Cmp(values[1])), nil
}
