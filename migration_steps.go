package settings

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Step upgrades a map by exactly one version.
type Step func(ctx context.Context, data *NormalizedMap) (*NormalizedMap, error)

// StepMigrator is a MigrationService that chains single-version steps. The
// step registered for version n upgrades n to n+1.
type StepMigrator struct {
	mu    sync.RWMutex
	steps map[int]Step
}

// NewStepMigrator constructs an empty migrator.
func NewStepMigrator() *StepMigrator {
	return &StepMigrator{steps: map[int]Step{}}
}

// Register stores step as the upgrade from version from to from+1.
func (m *StepMigrator) Register(from int, step Step) error {
	if from < 1 {
		return fmt.Errorf("settings: migration step version must be positive, got %d", from)
	}
	if step == nil {
		return fmt.Errorf("settings: migration step for v%d is nil", from)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.steps == nil {
		m.steps = map[int]Step{}
	}
	if _, exists := m.steps[from]; exists {
		return fmt.Errorf("settings: migration step for v%d already registered", from)
	}
	m.steps[from] = step
	return nil
}

// Versions returns the versions that have a registered step, ascending.
func (m *StepMigrator) Versions() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int, 0, len(m.steps))
	for v := range m.steps {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// Migrate implements MigrationService.
func (m *StepMigrator) Migrate(ctx context.Context, data *NormalizedMap, from, to int) (*NormalizedMap, error) {
	current := data
	for v := from; v < to; v++ {
		m.mu.RLock()
		step, ok := m.steps[v]
		m.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("no migration step from v%d to v%d", v, v+1)
		}
		next, err := step(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("step v%d->v%d: %w", v, v+1, err)
		}
		if next == nil {
			next = NewNormalizedMap()
		}
		current = next.WithVersion(v + 1)
	}
	return current, nil
}

// Assignment sets Key to the result of evaluating Expr against the map being
// migrated.
type Assignment struct {
	Key  string `json:"key" yaml:"key"`
	Expr string `json:"expr" yaml:"expr"`
}

// ExprStep builds a Step from expressions. Every key of the incoming map is
// visible as a variable, and an expression naming a key the map lacks fails
// the step rather than storing null. Assignments run in order against the
// original map, then drop removes keys. A nil evaluator uses the expr engine.
func ExprStep(evaluator Evaluator, set []Assignment, drop ...string) Step {
	if evaluator == nil {
		evaluator = NewExprEvaluator()
	}
	assignments := append([]Assignment(nil), set...)
	dropped := append([]string(nil), drop...)
	return func(_ context.Context, data *NormalizedMap) (*NormalizedMap, error) {
		ctx := RuleContext{Snapshot: data.Map(), Strict: true}
		out := data.Clone()
		for _, a := range assignments {
			value, err := evaluator.Evaluate(ctx, a.Expr)
			if err != nil {
				return nil, fmt.Errorf("assign %q: %w", a.Key, err)
			}
			if err := out.Set(a.Key, value); err != nil {
				return nil, err
			}
		}
		for _, key := range dropped {
			out.Delete(key)
		}
		return out, nil
	}
}
