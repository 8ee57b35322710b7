package settings

import (
	"fmt"
	"regexp"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// celMaxArity bounds the overloads declared for custom functions; CEL has no
// variadic calls.
const celMaxArity = 4

var celIdentifier = regexp.MustCompile(`^[_a-zA-Z][_a-zA-Z0-9]*$`)

// CELEvaluatorOption configures the CEL evaluator.
type CELEvaluatorOption func(*evaluatorConfig)

// CELWithProgramCache wires a ProgramCache into the CEL evaluator.
func CELWithProgramCache(cache ProgramCache) CELEvaluatorOption {
	return withProgramCache(cache)
}

// CELWithFunctionRegistry wires a FunctionRegistry into the CEL evaluator.
func CELWithFunctionRegistry(registry *FunctionRegistry) CELEvaluatorOption {
	return withFunctionRegistry(registry)
}

// celEvaluator type-checks every rule before it runs. Snapshot variables are
// declared from the schema when the context carries one, so `port > "x"`
// fails for an int parameter; keys the schema does not know are dyn.
type celEvaluator struct {
	evaluatorConfig
}

// NewCELEvaluator constructs an Evaluator backed by cel-go.
func NewCELEvaluator(opts ...CELEvaluatorOption) Evaluator {
	return &celEvaluator{evaluatorConfig: newEvaluatorConfig("cel", opts)}
}

func (e *celEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	if expression == "" {
		return nil, wrapEvaluatorError(e.engine, errEmptyExpression)
	}
	scope := newRuleScope(ctx)
	program, err := e.program(expression, celVariables(ctx.Schema, scope))
	if err != nil {
		return nil, wrapEvaluationError(e.engine, expression, ctx.label(), err)
	}
	out, _, err := program.Eval(scope.env())
	if err != nil {
		return nil, wrapEvaluationError(e.engine, expression, ctx.label(), err)
	}
	if _, null := out.(types.Null); null {
		return nil, nil
	}
	return out.Value(), nil
}

// Compile defers checking to the first evaluation, since declarations depend
// on the snapshot.
func (e *celEvaluator) Compile(expression string, _ ...CompileOption) (CompiledRule, error) {
	if expression == "" {
		return nil, wrapEvaluatorError(e.engine, errEmptyExpression)
	}
	return &celCompiledRule{evaluator: e, expression: expression}, nil
}

type celVariable struct {
	name string
	typ  *celgo.Type
}

func celVariables(schema *Schema, scope ruleScope) []celVariable {
	names := scope.names()
	out := make([]celVariable, 0, len(names))
	for _, name := range names {
		typ := celgo.DynType
		if p, ok := schema.Parameter(name); ok {
			typ = celTypeOf(p)
		}
		out = append(out, celVariable{name: name, typ: typ})
	}
	return out
}

// celTypeOf maps a parameter onto the CEL type of its normalized value.
// Nullable parameters stay dyn so a stored null still binds.
func celTypeOf(p ParameterMetadata) *celgo.Type {
	if p.Nullable {
		return celgo.DynType
	}
	switch p.Type {
	case TypeInt:
		return celgo.IntType
	case TypeFloat:
		return celgo.DoubleType
	case TypeBool:
		return celgo.BoolType
	case TypeString, TypeChoice:
		return celgo.StringType
	case TypeList:
		return celgo.ListType(celgo.DynType)
	default:
		return celgo.DynType
	}
}

func (e *celEvaluator) program(expression string, variables []celVariable) (celgo.Program, error) {
	signature := make([]string, 0, len(variables)+1)
	signature = append(signature, "vars")
	for _, v := range variables {
		signature = append(signature, v.name+":"+v.typ.String())
	}
	key := e.programKey(expression, signature)
	if cached, ok := e.cached(key); ok {
		if program, ok := cached.(celgo.Program); ok {
			return program, nil
		}
	}

	env, err := e.buildEnv(variables)
	if err != nil {
		return nil, err
	}
	checked, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	program, err := env.Program(checked)
	if err != nil {
		return nil, err
	}
	e.store(key, program)
	return program, nil
}

func (e *celEvaluator) buildEnv(variables []celVariable) (*celgo.Env, error) {
	dynMap := celgo.MapType(celgo.StringType, celgo.DynType)
	opts := []celgo.EnvOption{
		celgo.Variable("now", celgo.TimestampType),
		celgo.Variable("args", dynMap),
		celgo.Variable("metadata", dynMap),
		celgo.Variable("settings", dynMap),
	}
	for _, v := range variables {
		opts = append(opts, celgo.Variable(v.name, v.typ))
	}
	if e.registry == nil {
		return celgo.NewEnv(opts...)
	}
	opts = append(opts, celgo.Function("call", e.overloads("call", []*celgo.Type{celgo.StringType}, e.callByName)...))
	for _, name := range e.functionNames() {
		if !celIdentifier.MatchString(name) || isReservedRuleName(name) || name == "call" {
			continue
		}
		opts = append(opts, celgo.Function(name, e.overloads(name, nil, e.function(name))...))
	}
	return celgo.NewEnv(opts...)
}

// overloads declares fn for every arity up to celMaxArity after the fixed
// leading parameters.
func (e *celEvaluator) overloads(name string, leading []*celgo.Type, fn Function) []celgo.FunctionOpt {
	binding := celgo.FunctionBinding(func(values ...ref.Val) ref.Val {
		arguments := make([]any, len(values))
		for i, value := range values {
			arguments[i] = value.Value()
		}
		result, err := fn(arguments...)
		if err != nil {
			return types.NewErr("%s: %v", name, err)
		}
		if result == nil {
			return types.NullValue
		}
		return types.DefaultTypeAdapter.NativeToValue(result)
	})
	out := make([]celgo.FunctionOpt, 0, celMaxArity+1)
	for arity := 0; arity <= celMaxArity; arity++ {
		params := append([]*celgo.Type(nil), leading...)
		for i := 0; i < arity; i++ {
			params = append(params, celgo.DynType)
		}
		id := fmt.Sprintf("settings_%s_%d", name, len(params))
		out = append(out, celgo.Overload(id, params, celgo.DynType, binding))
	}
	return out
}

type celCompiledRule struct {
	evaluator  *celEvaluator
	expression string
}

func (r *celCompiledRule) Evaluate(ctx RuleContext) (any, error) {
	return r.evaluator.Evaluate(ctx, r.expression)
}
