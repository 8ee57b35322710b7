package openapi

import (
	"reflect"
	"testing"

	settings "github.com/goliatone/go-settings"
)

func TestTypeNodeMapping(t *testing.T) {
	cases := []struct {
		name    string
		typ     string
		options map[string]any
		want    map[string]any
	}{
		{name: "int", typ: settings.TypeInt, want: map[string]any{"type": "integer", "format": "int64"}},
		{name: "float", typ: settings.TypeFloat, want: map[string]any{"type": "number", "format": "double"}},
		{name: "bool", typ: settings.TypeBool, want: map[string]any{"type": "boolean"}},
		{name: "datetime", typ: settings.TypeDatetime, want: map[string]any{"type": "string", "format": "date-time"}},
		{name: "uuid", typ: settings.TypeUUID, want: map[string]any{"type": "string", "format": "uuid"}},
		{name: "custom", typ: "color", want: map[string]any{"type": "string", "format": "settings:color"}},
		{
			name:    "choice",
			typ:     settings.TypeChoice,
			options: map[string]any{"choices": []any{"a", "b"}},
			want:    map[string]any{"type": "string", "enum": []any{"a", "b"}},
		},
		{
			name:    "list of ints",
			typ:     settings.TypeList,
			options: map[string]any{"item": settings.TypeInt},
			want: map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "integer", "format": "int64"},
			},
		},
		{
			name: "list defaults to strings",
			typ:  settings.TypeList,
			want: map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			node, err := typeNode(tc.typ, tc.options)
			if err != nil {
				t.Fatalf("typeNode returned error: %v", err)
			}
			if got := node.inlineOpenAPI(); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("unexpected node\nwant: %#v\n got: %#v", tc.want, got)
			}
		})
	}
}

func TestApplyConstraintsRejectsNonNumericBounds(t *testing.T) {
	node := &schemaNode{Type: "integer"}
	err := applyConstraints(node, map[string]any{"minimum": "low"})
	if err == nil {
		t.Fatalf("expected error for non-numeric minimum")
	}
}

func TestApplyConstraintsIgnoresMismatchedKinds(t *testing.T) {
	node := &schemaNode{Type: "boolean"}
	if err := applyConstraints(node, map[string]any{"minimum": 1, "pattern": "^x$"}); err != nil {
		t.Fatalf("applyConstraints returned error: %v", err)
	}
	if node.Minimum != nil || node.Pattern != "" {
		t.Fatalf("expected boolean node to ignore numeric and string constraints: %#v", node)
	}
}

func TestComponentRegistryUniqueNames(t *testing.T) {
	registry := newComponentRegistry()
	first, fresh := registry.reserve("a.Mailer", "Mailer")
	if !fresh || first != "#/components/schemas/Mailer" {
		t.Fatalf("unexpected first reservation %q fresh=%v", first, fresh)
	}
	second, fresh := registry.reserve("b.Mailer", "Mailer")
	if !fresh || second != "#/components/schemas/Mailer1" {
		t.Fatalf("unexpected second reservation %q fresh=%v", second, fresh)
	}
	again, fresh := registry.reserve("a.Mailer", "Other")
	if fresh || again != first {
		t.Fatalf("expected existing reservation, got %q fresh=%v", again, fresh)
	}
	if got := sanitizeComponentName("9 lives!"); got != "_9_lives" {
		t.Fatalf("unexpected sanitized name %q", got)
	}
}
