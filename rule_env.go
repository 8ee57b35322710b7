package settings

import (
	"sort"
	"time"
)

// reservedRuleNames are bound by every engine and shadow snapshot keys of the
// same name.
var reservedRuleNames = []string{"now", "args", "metadata", "settings"}

// ruleScope is everything one evaluation binds, built once and handed to the
// engine in whatever shape it expects.
type ruleScope struct {
	now       time.Time
	args      map[string]any
	metadata  map[string]any
	settings  map[string]any
	variables map[string]any
}

func newRuleScope(ctx RuleContext) ruleScope {
	ctx = ctx.withDefaults()
	return ruleScope{
		now:       ctx.timestamp(),
		args:      ctx.Args,
		metadata:  ctx.Metadata,
		settings:  ctx.binding(),
		variables: ctx.variables(),
	}
}

func (s ruleScope) reserved() map[string]any {
	return map[string]any{
		"now":      s.now,
		"args":     s.args,
		"metadata": s.metadata,
		"settings": s.settings,
	}
}

// env flattens the scope into a single variable map.
func (s ruleScope) env() map[string]any {
	out := make(map[string]any, len(s.variables)+len(reservedRuleNames))
	for key, value := range s.variables {
		out[key] = value
	}
	for key, value := range s.reserved() {
		out[key] = value
	}
	return out
}

// declarations mirrors env with every snapshot value left untyped, so a
// checked program stays valid for any values bound under the same names.
func (s ruleScope) declarations() map[string]any {
	out := make(map[string]any, len(s.variables)+len(reservedRuleNames))
	for key := range s.variables {
		out[key] = nil
	}
	for key, value := range s.reserved() {
		out[key] = value
	}
	return out
}

// names lists the snapshot variables that reserved names do not shadow,
// sorted.
func (s ruleScope) names() []string {
	out := make([]string, 0, len(s.variables))
	for key := range s.variables {
		if isReservedRuleName(key) {
			continue
		}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func isReservedRuleName(name string) bool {
	for _, reserved := range reservedRuleNames {
		if reserved == name {
			return true
		}
	}
	return false
}
