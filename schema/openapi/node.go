package openapi

import (
	"fmt"
	"sort"

	settings "github.com/goliatone/go-settings"
	"github.com/spf13/cast"
)

type schemaNode struct {
	Type             string
	Format           string
	Title            string
	Description      string
	Ref              string
	Nullable         bool
	Properties       map[string]*schemaNode
	Required         []string
	Items            *schemaNode
	Enum             []any
	Default          any
	Minimum          *float64
	Maximum          *float64
	ExclusiveMinimum *float64
	ExclusiveMaximum *float64
	MinLength        *int
	MaxLength        *int
	Pattern          string
	extensions       map[string]any
}

func newObjectNode() *schemaNode {
	return &schemaNode{
		Type:       "object",
		Properties: map[string]*schemaNode{},
	}
}

func (n *schemaNode) baseMap() map[string]any {
	if n.Ref != "" {
		return map[string]any{"$ref": n.Ref}
	}
	result := map[string]any{}
	if n.Type != "" {
		result["type"] = n.Type
	}
	if n.Format != "" {
		result["format"] = n.Format
	}
	if n.Title != "" {
		result["title"] = n.Title
	}
	if n.Description != "" {
		result["description"] = n.Description
	}
	if n.Nullable {
		result["nullable"] = true
	}
	if n.Default != nil {
		result["default"] = n.Default
	}
	if len(n.Enum) > 0 {
		result["enum"] = n.Enum
	}
	if n.Minimum != nil {
		result["minimum"] = *n.Minimum
	}
	if n.Maximum != nil {
		result["maximum"] = *n.Maximum
	}
	if n.ExclusiveMinimum != nil {
		result["exclusiveMinimum"] = *n.ExclusiveMinimum
	}
	if n.ExclusiveMaximum != nil {
		result["exclusiveMaximum"] = *n.ExclusiveMaximum
	}
	if n.MinLength != nil {
		result["minLength"] = *n.MinLength
	}
	if n.MaxLength != nil {
		result["maxLength"] = *n.MaxLength
	}
	if n.Pattern != "" {
		result["pattern"] = n.Pattern
	}
	return result
}

func (n *schemaNode) inlineOpenAPI() map[string]any {
	result := n.baseMap()
	if n.Ref != "" {
		return result
	}

	if len(n.Properties) > 0 || n.Type == "object" {
		props := make(map[string]any, len(n.Properties))
		names := make([]string, 0, len(n.Properties))
		for name := range n.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			props[name] = n.Properties[name].inlineOpenAPI()
		}
		result["properties"] = props
	}

	if len(n.Required) > 0 {
		names := append([]string{}, n.Required...)
		sort.Strings(names)
		result["required"] = names
	}

	if n.Items != nil {
		result["items"] = n.Items.inlineOpenAPI()
	}

	for key, value := range n.extensions {
		result[key] = value
	}
	return result
}

func (n *schemaNode) setExtension(key string, value any) {
	if n.extensions == nil {
		n.extensions = map[string]any{}
	}
	n.extensions[key] = value
}

// parameterNode maps a parameter onto the JSON Schema of its normalized form.
func parameterNode(resolver settings.SchemaResolver, s *settings.Schema, p settings.ParameterMetadata) (*schemaNode, error) {
	node, err := typeNode(p.Type, p.Options)
	if err != nil {
		return nil, fmt.Errorf("openapi: parameter %q: %w", p.Name, err)
	}
	node.Title = p.Label
	node.Description = p.Description
	node.Nullable = p.Nullable
	def, err := settings.NormalizedDefault(resolver, s, p)
	if err != nil {
		return nil, fmt.Errorf("openapi: default for %q: %w", p.Name, err)
	}
	node.Default = def
	if len(p.Groups) > 0 {
		node.setExtension("x-settings-groups", append([]string{}, p.Groups...))
	}
	if p.Name != p.Key {
		node.setExtension("x-settings-name", p.Name)
	}
	if err := applyConstraints(node, p.Options); err != nil {
		return nil, fmt.Errorf("openapi: parameter %q: %w", p.Name, err)
	}
	return node, nil
}

func typeNode(typeName string, options map[string]any) (*schemaNode, error) {
	switch typeName {
	case settings.TypeString:
		return &schemaNode{Type: "string"}, nil
	case settings.TypeInt:
		return &schemaNode{Type: "integer", Format: "int64"}, nil
	case settings.TypeFloat:
		return &schemaNode{Type: "number", Format: "double"}, nil
	case settings.TypeBool:
		return &schemaNode{Type: "boolean"}, nil
	case settings.TypeChoice:
		choices, err := cast.ToStringSliceE(options["choices"])
		if err != nil {
			return nil, err
		}
		enum := make([]any, len(choices))
		for i, c := range choices {
			enum[i] = c
		}
		return &schemaNode{Type: "string", Enum: enum}, nil
	case settings.TypeDuration:
		return &schemaNode{Type: "string", Format: "duration"}, nil
	case settings.TypeDatetime:
		return &schemaNode{Type: "string", Format: "date-time"}, nil
	case settings.TypeDecimal:
		return &schemaNode{Type: "string", Format: "decimal"}, nil
	case settings.TypeSemver:
		return &schemaNode{Type: "string", Format: "semver"}, nil
	case settings.TypeUUID:
		return &schemaNode{Type: "string", Format: "uuid"}, nil
	case settings.TypeList:
		item, _ := options["item"].(string)
		if item == "" {
			item = settings.TypeString
		}
		itemOptions, _ := options["item_options"].(map[string]any)
		child, err := typeNode(item, itemOptions)
		if err != nil {
			return nil, err
		}
		return &schemaNode{Type: "array", Items: child}, nil
	default:
		// Custom converters publish their name so clients can special-case them.
		return &schemaNode{Type: "string", Format: "settings:" + typeName}, nil
	}
}

func applyConstraints(node *schemaNode, options map[string]any) error {
	assignFloat := func(target **float64, key string) error {
		raw, ok := options[key]
		if !ok {
			return nil
		}
		value, err := cast.ToFloat64E(raw)
		if err != nil {
			return fmt.Errorf("option %s: %w", key, err)
		}
		*target = &value
		return nil
	}
	assignInt := func(target **int, key string) error {
		raw, ok := options[key]
		if !ok {
			return nil
		}
		value, err := cast.ToIntE(raw)
		if err != nil {
			return fmt.Errorf("option %s: %w", key, err)
		}
		*target = &value
		return nil
	}

	switch node.Type {
	case "integer", "number":
		for key, target := range map[string]**float64{
			"minimum":          &node.Minimum,
			"maximum":          &node.Maximum,
			"exclusiveMinimum": &node.ExclusiveMinimum,
			"exclusiveMaximum": &node.ExclusiveMaximum,
		} {
			if err := assignFloat(target, key); err != nil {
				return err
			}
		}
	case "string":
		if err := assignInt(&node.MinLength, "minLength"); err != nil {
			return err
		}
		if err := assignInt(&node.MaxLength, "maxLength"); err != nil {
			return err
		}
		if pattern, ok := options["pattern"].(string); ok {
			node.Pattern = pattern
		}
	}
	return nil
}
