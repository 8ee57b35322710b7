package settings

import "time"

// RuleContext carries inputs needed when evaluating an expression against a
// settings snapshot.
type RuleContext struct {
	// Snapshot holds the variables: a map[string]any or a *NormalizedMap.
	Snapshot any
	Now      *time.Time
	Args     map[string]any
	Metadata map[string]any
	// Identity names the settings schema the snapshot belongs to.
	Identity string
	// Schema types the snapshot for engines that check expressions before
	// running them. Parameters are looked up by name.
	Schema *Schema
	// Strict rejects expressions that reference a variable the snapshot does
	// not bind.
	Strict bool
}

func (ctx RuleContext) withDefaultNow() RuleContext {
	if ctx.Now != nil {
		return ctx
	}
	now := time.Now()
	ctx.Now = &now
	return ctx
}

func (ctx RuleContext) timestamp() time.Time {
	ctx = ctx.withDefaultNow()
	return *ctx.Now
}

func (ctx RuleContext) withDefaultMaps() RuleContext {
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	return ctx
}

func (ctx RuleContext) withDefaults() RuleContext {
	return ctx.withDefaultNow().withDefaultMaps()
}

func (ctx RuleContext) identity() string {
	if ctx.Identity != "" {
		return ctx.Identity
	}
	if ctx.Schema != nil {
		return ctx.Schema.Identity()
	}
	return ""
}

func (ctx RuleContext) label() string {
	if identity := ctx.identity(); identity != "" {
		return identity
	}
	return "unknown"
}

// binding is the value of the `settings` variable.
func (ctx RuleContext) binding() map[string]any {
	out := map[string]any{}
	if identity := ctx.identity(); identity != "" {
		out["identity"] = identity
	}
	if ctx.Schema != nil {
		out["short_name"] = ctx.Schema.ShortName()
		if version, ok := ctx.Schema.Version(); ok {
			out["version"] = int64(version)
		}
	}
	return out
}

func (ctx RuleContext) variables() map[string]any {
	switch snapshot := ctx.Snapshot.(type) {
	case *NormalizedMap:
		return snapshot.Map()
	case map[string]any:
		if snapshot != nil {
			return snapshot
		}
	}
	return map[string]any{}
}

// Evaluator executes expressions against a rule context.
type Evaluator interface {
	Evaluate(ctx RuleContext, expr string) (any, error)
	Compile(expr string, opts ...CompileOption) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx RuleContext) (any, error)
}

// CompileOption configures evaluator compile behaviour.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct{}
