package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Validator inspects an instance before it is saved. Violations reject the
// save; a non-nil error means the validator itself could not run.
type Validator interface {
	Validate(ctx context.Context, inst *Instance) ([]Violation, error)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, inst *Instance) ([]Violation, error)

// Validate implements Validator.
func (f ValidatorFunc) Validate(ctx context.Context, inst *Instance) ([]Violation, error) {
	if f == nil {
		return nil, nil
	}
	return f(ctx, inst)
}

// Validators runs every validator and concatenates their violations.
type Validators []Validator

// Validate implements Validator.
func (vs Validators) Validate(ctx context.Context, inst *Instance) ([]Violation, error) {
	var (
		out  []Violation
		errs []error
	)
	for _, v := range vs {
		if v == nil {
			continue
		}
		violations, err := v.Validate(ctx, inst)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, violations...)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// Rule is a boolean expression that must hold for an instance to be saved.
type Rule struct {
	// Schema limits the rule to one identity or short name. Empty applies
	// the rule everywhere.
	Schema  string `json:"schema,omitempty" yaml:"schema,omitempty"`
	Path    string `json:"path" yaml:"path"`
	Expr    string `json:"expr" yaml:"expr"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
	Code    string `json:"code,omitempty" yaml:"code,omitempty"`
}

func (r Rule) appliesTo(s *Schema) bool {
	ref := strings.TrimSpace(r.Schema)
	return ref == "" || ref == s.Identity() || ref == s.ShortName()
}

// RuleValidator evaluates rules over an instance's normalized values. Every
// parameter is visible to the expression under its name.
type RuleValidator struct {
	evaluator Evaluator
	rules     []Rule
}

// NewRuleValidator builds a validator from rules. A nil evaluator uses the
// expr engine.
func NewRuleValidator(evaluator Evaluator, rules ...Rule) *RuleValidator {
	if evaluator == nil {
		evaluator = NewExprEvaluator()
	}
	return &RuleValidator{evaluator: evaluator, rules: append([]Rule(nil), rules...)}
}

// NewEvaluator returns the evaluator registered under engine: expr, cel or
// js. The js engine requires the js_eval build tag.
func NewEvaluator(engine string, cache ProgramCache, functions *FunctionRegistry) (Evaluator, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", "expr":
		var opts []ExprEvaluatorOption
		if cache != nil {
			opts = append(opts, ExprWithProgramCache(cache))
		}
		if functions != nil {
			opts = append(opts, ExprWithFunctionRegistry(functions))
		}
		return NewExprEvaluator(opts...), nil
	case "cel":
		var opts []CELEvaluatorOption
		if cache != nil {
			opts = append(opts, CELWithProgramCache(cache))
		}
		if functions != nil {
			opts = append(opts, CELWithFunctionRegistry(functions))
		}
		return NewCELEvaluator(opts...), nil
	case "js":
		if !jsEvaluatorAvailable() {
			return nil, fmt.Errorf("settings: js evaluator requires the js_eval build tag")
		}
		var opts []JSEvaluatorOption
		if cache != nil {
			opts = append(opts, JSWithProgramCache(cache))
		}
		if functions != nil {
			opts = append(opts, JSWithFunctionRegistry(functions))
		}
		return NewJSEvaluator(opts...), nil
	default:
		return nil, fmt.Errorf("settings: unknown evaluator engine %q", engine)
	}
}

// Validate implements Validator.
func (v *RuleValidator) Validate(_ context.Context, inst *Instance) ([]Violation, error) {
	if inst == nil {
		return nil, fmt.Errorf("settings: validate nil instance")
	}
	var snapshot map[string]any
	var out []Violation
	for _, rule := range v.rules {
		if !rule.appliesTo(inst.schema) {
			continue
		}
		if snapshot == nil {
			var err error
			if snapshot, err = inst.snapshot(); err != nil {
				return nil, err
			}
		}
		ctx := RuleContext{Snapshot: snapshot, Identity: inst.schema.Identity(), Schema: inst.schema}.withDefaults()
		result, err := v.evaluator.Evaluate(ctx, rule.Expr)
		if err != nil {
			return nil, wrapEvaluationError(evaluatorEngineName(v.evaluator), rule.Expr, ctx.label(), err)
		}
		ok, isBool := result.(bool)
		if !isBool {
			return nil, fmt.Errorf("settings: rule %q returned %T, not bool", rule.Expr, result)
		}
		if ok {
			continue
		}
		message := rule.Message
		if message == "" {
			message = fmt.Sprintf("rule %q failed", rule.Expr)
		}
		out = append(out, Violation{Path: rule.Path, Message: message, Code: rule.Code})
	}
	return out, nil
}
