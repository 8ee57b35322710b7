package openapi

import (
	"fmt"
	"sort"
	"strings"

	settings "github.com/goliatone/go-settings"
	"github.com/stoewer/go-strcase"
)

type openAPIDocumentBuilder struct {
	config   generatorConfig
	registry *componentRegistry
	resolver settings.SchemaResolver
	root     *settings.Schema
	rootRef  string
	inline   map[string]any
}

func newOpenAPIDocumentBuilder(config generatorConfig, resolver settings.SchemaResolver, root *settings.Schema) *openAPIDocumentBuilder {
	return &openAPIDocumentBuilder{
		config:   config,
		registry: newComponentRegistry(),
		resolver: resolver,
		root:     root,
	}
}

func (b *openAPIDocumentBuilder) build() (map[string]any, error) {
	if b.root == nil {
		return nil, fmt.Errorf("openapi: root schema cannot be nil")
	}

	if b.config.rootComponent != "" {
		ref, _ := b.registry.reserve(b.root.Identity(), b.config.rootComponent)
		b.rootRef = ref
		node, err := b.objectFor(b.root)
		if err != nil {
			return nil, err
		}
		b.registry.fill(b.root.Identity(), node.inlineOpenAPI())
	} else {
		node, err := b.objectFor(b.root)
		if err != nil {
			return nil, err
		}
		b.inline = node.inlineOpenAPI()
	}

	document := map[string]any{
		"openapi": b.config.openAPIVersion,
		"info":    b.buildInfo(),
		"paths":   b.buildPaths(),
	}

	if components := b.registry.componentsMap(); components != nil {
		document["components"] = map[string]any{
			"schemas": components,
		}
	}

	if err := validateDocument(document); err != nil {
		return nil, err
	}

	return document, nil
}

// objectFor describes the normalized map of s. Properties are keyed by
// storage key; embeds point at their target's component.
func (b *openAPIDocumentBuilder) objectFor(s *settings.Schema) (*schemaNode, error) {
	node := newObjectNode()
	node.setExtension("x-settings-identity", s.Identity())
	if version, ok := s.Version(); ok {
		node.setExtension("x-settings-version", version)
	}
	for _, p := range s.Parameters() {
		child, err := parameterNode(b.resolver, s, p)
		if err != nil {
			return nil, err
		}
		node.Properties[p.Key] = child
		if !p.Nullable {
			node.Required = append(node.Required, p.Key)
		}
	}
	for _, e := range s.Embeds() {
		ref, err := b.componentFor(e.Target)
		if err != nil {
			return nil, err
		}
		node.Properties[e.Key] = &schemaNode{Ref: ref}
	}
	return node, nil
}

func (b *openAPIDocumentBuilder) componentFor(identity string) (string, error) {
	if b.resolver == nil {
		return "", fmt.Errorf("openapi: embed %q needs a schema resolver", identity)
	}
	target, err := b.resolver.Schema(identity)
	if err != nil {
		return "", err
	}
	ref, fresh := b.registry.reserve(target.Identity(), strcase.UpperCamelCase(target.ShortName()))
	if !fresh {
		return ref, nil
	}
	node, err := b.objectFor(target)
	if err != nil {
		return "", err
	}
	b.registry.fill(target.Identity(), node.inlineOpenAPI())
	return ref, nil
}

func (b *openAPIDocumentBuilder) buildInfo() map[string]any {
	info := map[string]any{
		"title":   b.config.info.Title,
		"version": b.config.info.Version,
	}
	if b.config.info.Description != "" {
		info["description"] = b.config.info.Description
	}
	return info
}

func (b *openAPIDocumentBuilder) buildPaths() map[string]any {
	paths := map[string]any{}
	add := func(path, method string, operation map[string]any) {
		item, _ := paths[path].(map[string]any)
		if item == nil {
			item = map[string]any{}
			paths[path] = item
		}
		item[method] = operation
	}

	writePath := b.pathFor(b.config.write)
	writeMethod := methodOr(b.config.write.Method, "put")
	write := b.operation(b.config.write, writeMethod, writePath)
	write["requestBody"] = map[string]any{
		"required": true,
		"content":  b.payload(),
	}
	write["responses"] = b.writeResponses()
	add(writePath, writeMethod, write)

	if b.config.read != nil {
		readPath := writePath
		if b.config.read.Path != "" {
			readPath = b.config.read.Path
		}
		readMethod := methodOr(b.config.read.Method, "get")
		read := b.operation(*b.config.read, readMethod, readPath)
		read["responses"] = map[string]any{
			"200": map[string]any{
				"description": "Stored settings",
				"content":     b.payload(),
			},
		}
		add(readPath, readMethod, read)
	}
	return paths
}

func (b *openAPIDocumentBuilder) operation(cfg operationConfig, method, path string) map[string]any {
	id := cfg.OperationID
	if id == "" {
		id = fmt.Sprintf("%s:%s", method, path)
	}
	operation := map[string]any{"operationId": id}
	if summary := strings.TrimSpace(cfg.Summary); summary != "" {
		operation["summary"] = summary
	}
	if b.config.instanceKey != "" && strings.Contains(path, "{"+b.config.instanceKey+"}") {
		operation["parameters"] = []any{
			map[string]any{
				"name":     b.config.instanceKey,
				"in":       "path",
				"required": true,
				"schema":   map[string]any{"type": "string"},
			},
		}
	}
	return operation
}

// payload is the media type map describing the root's normalized map.
func (b *openAPIDocumentBuilder) payload() map[string]any {
	var schema map[string]any
	switch {
	case b.inline != nil:
		schema = b.inline
	case b.rootRef != "":
		schema = map[string]any{"$ref": b.rootRef}
	default:
		schema = map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	return map[string]any{
		b.config.contentType: map[string]any{"schema": schema},
	}
}

func (b *openAPIDocumentBuilder) writeResponses() map[string]any {
	statuses := make([]string, 0, len(b.config.responses))
	for status := range b.config.responses {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	responses := make(map[string]any, len(statuses))
	for _, status := range statuses {
		responses[status] = map[string]any{
			"description": b.config.responses[status].Description,
		}
	}
	return responses
}

// pathFor returns cfg's explicit path, or <base>/<short name> followed by the
// instance key segment when one is configured.
func (b *openAPIDocumentBuilder) pathFor(cfg operationConfig) string {
	if cfg.Path != "" {
		return cfg.Path
	}
	path := b.config.basePath + "/" + b.root.ShortName()
	if b.config.instanceKey != "" {
		path += "/{" + b.config.instanceKey + "}"
	}
	return path
}

func methodOr(method, fallback string) string {
	if method = strings.ToLower(strings.TrimSpace(method)); method != "" {
		return method
	}
	return fallback
}

// bodyless methods carry the normalized map in their response only.
var bodyless = map[string]bool{"get": true, "head": true, "delete": true}

func validateDocument(document map[string]any) error {
	if document == nil {
		return fmt.Errorf("openapi: document cannot be nil")
	}
	openapi, _ := document["openapi"].(string)
	if openapi == "" {
		return fmt.Errorf("openapi: document missing version string")
	}
	info, _ := document["info"].(map[string]any)
	if info == nil {
		return fmt.Errorf("openapi: document missing info section")
	}
	if title, _ := info["title"].(string); title == "" {
		return fmt.Errorf("openapi: info.title must be set")
	}
	if version, _ := info["version"].(string); version == "" {
		return fmt.Errorf("openapi: info.version must be set")
	}
	paths, _ := document["paths"].(map[string]any)
	if len(paths) == 0 {
		return fmt.Errorf("openapi: document must define at least one path")
	}
	for pathKey, pathValue := range paths {
		pathItem, _ := pathValue.(map[string]any)
		if pathItem == nil {
			return fmt.Errorf("openapi: path %q invalid payload", pathKey)
		}
		if len(pathItem) == 0 {
			return fmt.Errorf("openapi: path %q missing operations", pathKey)
		}
		for method, operationValue := range pathItem {
			operation, _ := operationValue.(map[string]any)
			if operation == nil {
				return fmt.Errorf("openapi: operation %s %s invalid payload", method, pathKey)
			}
			if _, ok := operation["operationId"].(string); !ok {
				return fmt.Errorf("openapi: operation %s %s missing operationId", method, pathKey)
			}
			if !bodyless[method] {
				requestBody, _ := operation["requestBody"].(map[string]any)
				if requestBody == nil {
					return fmt.Errorf("openapi: operation %s %s missing requestBody", method, pathKey)
				}
				content, _ := requestBody["content"].(map[string]any)
				if len(content) == 0 {
					return fmt.Errorf("openapi: operation %s %s requestBody missing content", method, pathKey)
				}
			}
			if _, ok := operation["responses"].(map[string]any); !ok {
				return fmt.Errorf("openapi: operation %s %s missing responses", method, pathKey)
			}
		}
	}
	return nil
}
