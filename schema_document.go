package settings

import (
	"fmt"
	"strings"
)

// SchemaFormat identifies the representation a schema document encodes.
type SchemaFormat string

const (
	// SchemaFormatDescriptors represents the flattened field descriptors.
	SchemaFormatDescriptors SchemaFormat = "descriptors"
	// SchemaFormatOpenAPI represents OpenAPI-compatible JSON Schema documents.
	SchemaFormatOpenAPI SchemaFormat = "openapi"
)

// SchemaDocument encapsulates a generated schema output alongside its format
// so callers can branch on the payload type.
type SchemaDocument struct {
	Format   SchemaFormat
	Document any
}

// SchemaResolver gives generators access to embedded targets and to the
// converters that produce normalized defaults. Manager implements it.
type SchemaResolver interface {
	Schema(ref string) (*Schema, error)
	Registry() *Registry
}

// SchemaGenerator describes a schema for presentation layers. Generators must
// be safe for concurrent use.
type SchemaGenerator interface {
	Generate(s *Schema, resolver SchemaResolver) (SchemaDocument, error)
}

// FieldDescriptor describes one parameter or embed by dotted path.
type FieldDescriptor struct {
	Path     string   `json:"path"`
	Type     string   `json:"type"`
	Key      string   `json:"key"`
	Nullable bool     `json:"nullable,omitempty"`
	Default  any      `json:"default,omitempty"`
	Groups   []string `json:"groups,omitempty"`
	Label    string   `json:"label,omitempty"`
	// Target is set on embeds whose schema is already on the current path and
	// therefore not expanded again.
	Target string `json:"target,omitempty"`
}

// DefaultSchemaGenerator returns the built-in descriptor-based schema generator.
func DefaultSchemaGenerator() SchemaGenerator {
	return descriptorGenerator{}
}

// WithSchemaGenerator configures the generator used by Manager.Describe.
func WithSchemaGenerator(generator SchemaGenerator) Option {
	return func(cfg *managerConfig) {
		cfg.schemaGenerator = generator
	}
}

// Describe renders the schema for ref with the configured generator.
func (m *Manager) Describe(ref string) (SchemaDocument, error) {
	s, err := m.Schema(ref)
	if err != nil {
		return SchemaDocument{}, err
	}
	generator := m.cfg.schemaGenerator
	if generator == nil {
		generator = DefaultSchemaGenerator()
	}
	return generator.Generate(s, m)
}

type descriptorGenerator struct{}

func (descriptorGenerator) Generate(s *Schema, resolver SchemaResolver) (SchemaDocument, error) {
	if s == nil {
		return SchemaDocument{}, fmt.Errorf("settings: describe nil schema")
	}
	descriptors, err := deriveFieldDescriptors(s, resolver, "", map[string]bool{})
	if err != nil {
		return SchemaDocument{}, err
	}
	if descriptors == nil {
		descriptors = []FieldDescriptor{}
	}
	return SchemaDocument{
		Format:   SchemaFormatDescriptors,
		Document: descriptors,
	}, nil
}

func deriveFieldDescriptors(s *Schema, resolver SchemaResolver, prefix string, visiting map[string]bool) ([]FieldDescriptor, error) {
	visiting[s.Identity()] = true
	defer delete(visiting, s.Identity())

	var fields []FieldDescriptor
	for _, p := range s.Parameters() {
		def, err := NormalizedDefault(resolver, s, p)
		if err != nil {
			return nil, err
		}
		fields = append(fields, FieldDescriptor{
			Path:     joinPath(prefix, p.Name),
			Type:     describeType(p),
			Key:      p.Key,
			Nullable: p.Nullable,
			Default:  def,
			Groups:   p.Groups,
			Label:    p.Label,
		})
	}
	for _, e := range s.Embeds() {
		path := joinPath(prefix, e.Name)
		if visiting[e.Target] || resolver == nil {
			fields = append(fields, FieldDescriptor{Path: path, Type: "embed", Key: e.Key, Groups: e.Groups, Target: e.Target})
			continue
		}
		target, err := resolver.Schema(e.Target)
		if err != nil {
			return nil, err
		}
		nested, err := deriveFieldDescriptors(target, resolver, path, visiting)
		if err != nil {
			return nil, err
		}
		fields = append(fields, nested...)
	}
	return fields, nil
}

func describeType(p ParameterMetadata) string {
	if p.Type == TypeList {
		item, _ := p.Options["item"].(string)
		if item == "" {
			item = TypeString
		}
		return "[]" + item
	}
	return p.Type
}

// NormalizedDefault returns the storage form of p's default using the
// resolver's registry, or the built-in one when resolver is nil.
func NormalizedDefault(resolver SchemaResolver, s *Schema, p ParameterMetadata) (any, error) {
	if p.Default == nil {
		return nil, nil
	}
	registry := DefaultRegistry()
	if resolver != nil && resolver.Registry() != nil {
		registry = resolver.Registry()
	}
	return registry.Normalize(s, p, p.Default)
}

func joinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return strings.Join([]string{prefix, segment}, ".")
}
