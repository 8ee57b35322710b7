//go:build js_eval

package settings

import (
	"fmt"

	"github.com/dop251/goja"
)

// jsEvaluator runs rules in a fresh goja runtime per evaluation. Reading an
// unbound name throws a ReferenceError, so every context is strict here.
type jsEvaluator struct {
	evaluatorConfig
}

// NewJSEvaluator constructs an Evaluator backed by goja.
func NewJSEvaluator(opts ...JSEvaluatorOption) Evaluator {
	return &jsEvaluator{evaluatorConfig: newEvaluatorConfig("js", opts)}
}

func (e *jsEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	if expression == "" {
		return nil, wrapEvaluatorError(e.engine, errEmptyExpression)
	}
	program, err := e.program(expression)
	if err != nil {
		return nil, wrapEvaluationError(e.engine, expression, ctx.label(), err)
	}
	return e.run(ctx, expression, program)
}

func (e *jsEvaluator) Compile(expression string, _ ...CompileOption) (CompiledRule, error) {
	if expression == "" {
		return nil, wrapEvaluatorError(e.engine, errEmptyExpression)
	}
	program, err := e.program(expression)
	if err != nil {
		return nil, wrapEvaluationError(e.engine, expression, "", err)
	}
	return &jsCompiledRule{evaluator: e, expression: expression, program: program}, nil
}

func (e *jsEvaluator) program(expression string) (*goja.Program, error) {
	if cached, ok := e.cached(expression); ok {
		if program, ok := cached.(*goja.Program); ok {
			return program, nil
		}
	}
	program, err := goja.Compile("", fmt.Sprintf("(function(){ return (%s); })()", expression), true)
	if err != nil {
		return nil, err
	}
	e.store(expression, program)
	return program, nil
}

func (e *jsEvaluator) run(ctx RuleContext, expression string, program *goja.Program) (any, error) {
	vm := goja.New()
	if err := e.bind(vm, newRuleScope(ctx)); err != nil {
		return nil, wrapEvaluationError(e.engine, expression, ctx.label(), err)
	}
	value, err := vm.RunProgram(program)
	if err != nil {
		return nil, wrapEvaluationError(e.engine, expression, ctx.label(), err)
	}
	return value.Export(), nil
}

func (e *jsEvaluator) bind(vm *goja.Runtime, scope ruleScope) error {
	for key, value := range scope.env() {
		if err := vm.Set(key, value); err != nil {
			return fmt.Errorf("bind %q: %w", key, err)
		}
	}
	if e.registry == nil {
		return nil
	}
	if err := vm.Set("call", e.callByName); err != nil {
		return err
	}
	for _, name := range e.functionNames() {
		if _, taken := scope.variables[name]; taken || isReservedRuleName(name) {
			continue
		}
		if err := vm.Set(name, e.function(name)); err != nil {
			return fmt.Errorf("bind function %q: %w", name, err)
		}
	}
	return nil
}

type jsCompiledRule struct {
	evaluator  *jsEvaluator
	expression string
	program    *goja.Program
}

func (r *jsCompiledRule) Evaluate(ctx RuleContext) (any, error) {
	return r.evaluator.run(ctx, r.expression, r.program)
}

func jsEvaluatorAvailable() bool {
	return true
}
