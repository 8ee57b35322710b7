package openapi

import (
	settings "github.com/goliatone/go-settings"
)

type generator struct {
	config generatorConfig
}

// NewGenerator constructs an OpenAPI-compatible schema generator.
func NewGenerator(opts ...GeneratorOption) settings.SchemaGenerator {
	cfg := defaultGeneratorConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return generator{config: cfg}
}

// Option returns a settings.Option that wires the OpenAPI schema generator
// into a Manager.
func Option(opts ...GeneratorOption) settings.Option {
	return settings.WithSchemaGenerator(NewGenerator(opts...))
}

// Generate describes the normalized payload of s as an OpenAPI document with a
// write operation and, when configured, a read operation. Embedded schemas
// are published as components.
func (g generator) Generate(s *settings.Schema, resolver settings.SchemaResolver) (settings.SchemaDocument, error) {
	document, err := newOpenAPIDocumentBuilder(g.config, resolver, s).build()
	if err != nil {
		return settings.SchemaDocument{}, err
	}
	return settings.SchemaDocument{
		Format:   settings.SchemaFormatOpenAPI,
		Document: document,
	}, nil
}
