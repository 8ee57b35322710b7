package openapi

import (
	"fmt"
	"regexp"
)

// componentRegistry publishes one component per schema identity. Names are
// reserved before a component is built so cyclic embeds resolve to a $ref.
type componentRegistry struct {
	entries   map[string]*componentEntry
	order     []string
	usedNames map[string]struct{}
}

type componentEntry struct {
	name   string
	schema map[string]any
}

func newComponentRegistry() *componentRegistry {
	return &componentRegistry{
		entries:   map[string]*componentEntry{},
		usedNames: map[string]struct{}{},
	}
}

// reserve returns the component reference for identity and whether the
// caller must build it.
func (r *componentRegistry) reserve(identity, nameHint string) (string, bool) {
	if entry, ok := r.entries[identity]; ok {
		return componentRef(entry.name), false
	}
	name := r.uniqueName(nameHint)
	r.entries[identity] = &componentEntry{name: name}
	r.order = append(r.order, identity)
	return componentRef(name), true
}

func (r *componentRegistry) fill(identity string, schema map[string]any) {
	if entry, ok := r.entries[identity]; ok {
		entry.schema = schema
	}
}

func componentRef(name string) string {
	return fmt.Sprintf("#/components/schemas/%s", name)
}

func (r *componentRegistry) uniqueName(name string) string {
	safe := sanitizeComponentName(name)
	if safe == "" {
		safe = "Schema"
	}
	if _, exists := r.usedNames[safe]; !exists {
		r.usedNames[safe] = struct{}{}
		return safe
	}
	suffix := 1
	for {
		candidate := fmt.Sprintf("%s%d", safe, suffix)
		if _, exists := r.usedNames[candidate]; !exists {
			r.usedNames[candidate] = struct{}{}
			return candidate
		}
		suffix++
	}
}

func (r *componentRegistry) componentsMap() map[string]any {
	out := make(map[string]any, len(r.entries))
	for _, identity := range r.order {
		entry := r.entries[identity]
		if entry.schema == nil {
			entry.schema = map[string]any{}
		}
		out[entry.name] = entry.schema
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

var componentNameRegexp = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

func sanitizeComponentName(name string) string {
	name = componentNameRegexp.ReplaceAllString(name, "_")
	name = trimUnderscores(name)
	if name == "" {
		return ""
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	return name
}

func trimUnderscores(input string) string {
	start := 0
	for start < len(input) && input[start] == '_' {
		start++
	}
	end := len(input)
	for end > start && input[end-1] == '_' {
		end--
	}
	return input[start:end]
}
