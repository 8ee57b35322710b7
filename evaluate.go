package settings

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrNoEvaluator = errors.New("settings: evaluator not configured")

// Evaluate executes expr against the instance's normalized values, keyed by
// parameter name, using the manager's evaluator.
func (i *Instance) Evaluate(expr string) (any, error) {
	return i.EvaluateWith(RuleContext{}, expr)
}

// EvaluateWith executes expr using ctx, falling back to the instance's
// snapshot when ctx.Snapshot is nil.
func (i *Instance) EvaluateWith(ctx RuleContext, expr string) (any, error) {
	if expr == "" {
		return nil, fmt.Errorf("settings: expression must not be empty")
	}
	m := i.uow.manager
	evaluator, err := m.resolveEvaluator()
	if err != nil {
		return nil, err
	}
	if ctx.Snapshot == nil {
		snapshot, err := i.snapshot()
		if err != nil {
			return nil, err
		}
		ctx.Snapshot = snapshot
	}
	if ctx.Identity == "" {
		ctx.Identity = i.schema.Identity()
	}
	if ctx.Schema == nil {
		ctx.Schema = i.schema
	}
	ctx = ctx.withDefaults()
	engine := evaluatorEngineName(evaluator)
	start := time.Now()
	value, evalErr := evaluator.Evaluate(ctx, expr)
	duration := time.Since(start)
	evalErr = wrapEvaluationError(engine, expr, ctx.label(), evalErr)
	m.cfg.logger.LogOperation(LogEvent{
		Op:          OpEvaluate,
		Identity:    ctx.label(),
		InstanceKey: i.key,
		Engine:      engine,
		Expr:        expr,
		Duration:    duration,
		Err:         evalErr,
	})
	if evalErr != nil {
		return nil, evalErr
	}
	return value, nil
}

// snapshot exposes normalized values under parameter names so rules read the
// same scalars storage sees.
func (i *Instance) snapshot() (map[string]any, error) {
	out := make(map[string]any, len(i.schema.parameters))
	for _, p := range i.schema.parameters {
		value, err := i.registry().Normalize(i.schema, p, i.values[p.Name])
		if err != nil {
			return nil, err
		}
		out[p.Name] = value
	}
	return out, nil
}

var defaultEvaluatorMu sync.Mutex

func (m *Manager) resolveEvaluator() (Evaluator, error) {
	defaultEvaluatorMu.Lock()
	defer defaultEvaluatorMu.Unlock()
	if m.cfg.evaluator != nil {
		return m.cfg.evaluator, nil
	}
	var exprOpts []ExprEvaluatorOption
	if m.cfg.programCache != nil {
		exprOpts = append(exprOpts, ExprWithProgramCache(m.cfg.programCache))
	}
	functions := m.cfg.functions
	if functions == nil {
		functions = SettingsFunctions()
	}
	exprOpts = append(exprOpts, ExprWithFunctionRegistry(functions))
	defaultEvaluator := NewExprEvaluator(exprOpts...)
	if defaultEvaluator == nil {
		return nil, ErrNoEvaluator
	}
	m.cfg.evaluator = defaultEvaluator
	return defaultEvaluator, nil
}

func evaluatorEngineName(e Evaluator) string {
	if e == nil {
		return "unknown"
	}
	if named, ok := e.(interface{ Engine() string }); ok {
		return named.Engine()
	}
	return "custom"
}
