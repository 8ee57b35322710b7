package settings

import (
	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

// ExprEvaluatorOption configures the expr engine.
type ExprEvaluatorOption func(*evaluatorConfig)

// ExprWithProgramCache wires a ProgramCache into the expr evaluator.
func ExprWithProgramCache(cache ProgramCache) ExprEvaluatorOption {
	return withProgramCache(cache)
}

// ExprWithFunctionRegistry wires a FunctionRegistry into the expr evaluator.
func ExprWithFunctionRegistry(registry *FunctionRegistry) ExprEvaluatorOption {
	return withFunctionRegistry(registry)
}

// exprEvaluator runs rules with expr-lang/expr. Custom functions, `call`
// included, compile as expr builtins and never occupy a variable name.
type exprEvaluator struct {
	evaluatorConfig
}

// NewExprEvaluator constructs an Evaluator backed by expr-lang/expr.
func NewExprEvaluator(opts ...ExprEvaluatorOption) Evaluator {
	return &exprEvaluator{evaluatorConfig: newEvaluatorConfig("expr", opts)}
}

// Evaluate compiles expression for ctx and runs it. A strict context is
// checked against the snapshot's names, so an unbound variable fails to
// compile instead of reading as nil.
func (e *exprEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	if expression == "" {
		return nil, wrapEvaluatorError(e.engine, errEmptyExpression)
	}
	scope := newRuleScope(ctx)
	program, err := e.program(expression, scope, ctx.Strict)
	if err != nil {
		return nil, wrapEvaluationError(e.engine, expression, ctx.label(), err)
	}
	return e.run(program, expression, ctx, scope)
}

// Compile returns a rule whose program is reused for every non-strict
// evaluation.
func (e *exprEvaluator) Compile(expression string, _ ...CompileOption) (CompiledRule, error) {
	if expression == "" {
		return nil, wrapEvaluatorError(e.engine, errEmptyExpression)
	}
	program, err := e.program(expression, ruleScope{}, false)
	if err != nil {
		return nil, wrapEvaluationError(e.engine, expression, "", err)
	}
	return &exprCompiledRule{evaluator: e, program: program, expression: expression}, nil
}

func (e *exprEvaluator) program(expression string, scope ruleScope, strict bool) (*exprvm.Program, error) {
	var signature []string
	if strict {
		signature = append([]string{"strict"}, scope.names()...)
	}
	key := e.programKey(expression, signature)
	if cached, ok := e.cached(key); ok {
		if program, ok := cached.(*exprvm.Program); ok {
			return program, nil
		}
	}
	program, err := exprlang.Compile(expression, e.compileOptions(scope, strict)...)
	if err != nil {
		return nil, err
	}
	e.store(key, program)
	return program, nil
}

func (e *exprEvaluator) compileOptions(scope ruleScope, strict bool) []exprlang.Option {
	var options []exprlang.Option
	if strict {
		options = append(options, exprlang.Env(scope.declarations()))
	} else {
		options = append(options, exprlang.Env(map[string]any{}), exprlang.AllowUndefinedVariables())
	}
	if e.registry == nil {
		return options
	}
	options = append(options, exprlang.Function("call", e.callByName))
	for _, name := range e.functionNames() {
		options = append(options, exprlang.Function(name, e.function(name)))
	}
	return options
}

func (e *exprEvaluator) run(program *exprvm.Program, expression string, ctx RuleContext, scope ruleScope) (any, error) {
	result, err := exprlang.Run(program, scope.env())
	if err != nil {
		return nil, wrapEvaluationError(e.engine, expression, ctx.label(), err)
	}
	return result, nil
}

type exprCompiledRule struct {
	evaluator  *exprEvaluator
	program    *exprvm.Program
	expression string
}

func (r *exprCompiledRule) Evaluate(ctx RuleContext) (any, error) {
	if ctx.Strict {
		return r.evaluator.Evaluate(ctx, r.expression)
	}
	return r.evaluator.run(r.program, r.expression, ctx, newRuleScope(ctx))
}
