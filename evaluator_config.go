package settings

import (
	"errors"
	"fmt"
	"strings"
)

var errEmptyExpression = errors.New("expression must not be empty")

// evaluatorConfig is shared by every engine: where compiled programs are kept
// and which custom functions rules may call.
type evaluatorConfig struct {
	engine   string
	cache    ProgramCache
	registry *FunctionRegistry
}

type evaluatorOption interface {
	~func(*evaluatorConfig)
}

func newEvaluatorConfig[O evaluatorOption](engine string, opts []O) evaluatorConfig {
	cfg := evaluatorConfig{engine: engine}
	for _, opt := range opts {
		if apply := (func(*evaluatorConfig))(opt); apply != nil {
			apply(&cfg)
		}
	}
	return cfg
}

func withProgramCache(cache ProgramCache) func(*evaluatorConfig) {
	return func(cfg *evaluatorConfig) {
		cfg.cache = cache
	}
}

func withFunctionRegistry(registry *FunctionRegistry) func(*evaluatorConfig) {
	return func(cfg *evaluatorConfig) {
		if registry == nil {
			return
		}
		cfg.registry = registry.Clone()
	}
}

// JSEvaluatorOption configures the JS evaluator.
type JSEvaluatorOption func(*evaluatorConfig)

// JSWithProgramCache applies a ProgramCache to the JS evaluator.
func JSWithProgramCache(cache ProgramCache) JSEvaluatorOption {
	return withProgramCache(cache)
}

// JSWithFunctionRegistry applies a FunctionRegistry to the JS evaluator.
func JSWithFunctionRegistry(registry *FunctionRegistry) JSEvaluatorOption {
	return withFunctionRegistry(registry)
}

// Engine names the evaluator in log events.
func (c evaluatorConfig) Engine() string {
	return c.engine
}

// programKey keys a compiled program. Programs checked against a variable set
// also key on those names, and on their types when a schema supplied them.
func (c evaluatorConfig) programKey(expression string, signature []string) string {
	if len(signature) == 0 {
		return expression
	}
	return c.engine + "|" + strings.Join(signature, ",") + "|" + expression
}

func (c evaluatorConfig) cached(key string) (any, bool) {
	if c.cache == nil {
		return nil, false
	}
	return c.cache.Get(key)
}

func (c evaluatorConfig) store(key string, program any) {
	if c.cache != nil {
		c.cache.Set(key, program)
	}
}

func (c evaluatorConfig) functionNames() []string {
	if c.registry == nil {
		return nil
	}
	return c.registry.Names()
}

// callByName backs the `call(name, ...)` form every engine exposes.
func (c evaluatorConfig) callByName(arguments ...any) (any, error) {
	if c.registry == nil {
		return nil, fmt.Errorf("settings: function registry not configured")
	}
	if len(arguments) == 0 {
		return nil, fmt.Errorf("settings: call requires a function name")
	}
	name, ok := arguments[0].(string)
	if !ok {
		return nil, fmt.Errorf("settings: call name must be a string, got %T", arguments[0])
	}
	return c.registry.Call(name, arguments[1:]...)
}

func (c evaluatorConfig) function(name string) Function {
	return func(arguments ...any) (any, error) {
		return c.registry.Call(name, arguments...)
	}
}
