package openapi

import (
	"strings"
)

// DefaultBasePath prefixes the generated path of every settings schema.
const DefaultBasePath = "/settings"

type generatorConfig struct {
	openAPIVersion string
	info           openapiInfo
	basePath       string
	write          operationConfig
	read           *operationConfig
	instanceKey    string
	contentType    string
	responses      map[string]responseConfig
	rootComponent  string
}

type openapiInfo struct {
	Title       string
	Version     string
	Description string
}

// operationConfig describes one HTTP operation over a settings instance.
// Empty fields are derived from the schema's short name.
type operationConfig struct {
	Path        string
	Method      string
	OperationID string
	Summary     string
}

type responseConfig struct {
	Description string
}

func defaultGeneratorConfig() generatorConfig {
	return generatorConfig{
		openAPIVersion: "3.0.3",
		info: openapiInfo{
			Title:   "Settings Schema",
			Version: "1.0.0",
		},
		basePath: DefaultBasePath,
		write: operationConfig{
			Method: "put",
		},
		contentType: "application/json",
		responses: map[string]responseConfig{
			"204": {
				Description: "Settings saved",
			},
			"422": {
				Description: "Settings failed validation",
			},
		},
	}
}

// GeneratorOption configures the OpenAPI generator behaviour.
type GeneratorOption func(*generatorConfig)

// WithOpenAPIVersion overrides the OpenAPI version string (default: 3.0.3).
func WithOpenAPIVersion(version string) GeneratorOption {
	return func(cfg *generatorConfig) {
		if version == "" {
			return
		}
		cfg.openAPIVersion = version
	}
}

// InfoOption configures optional fields on the OpenAPI info section.
type InfoOption func(*openapiInfo)

// WithInfoDescription sets the optional description field for the info section.
func WithInfoDescription(description string) InfoOption {
	return func(info *openapiInfo) {
		info.Description = description
	}
}

// WithInfo configures the OpenAPI info block. Empty strings retain the
// existing values.
func WithInfo(title, version string, opts ...InfoOption) GeneratorOption {
	return func(cfg *generatorConfig) {
		if title != "" {
			cfg.info.Title = title
		}
		if version != "" {
			cfg.info.Version = version
		}
		for _, opt := range opts {
			if opt != nil {
				opt(&cfg.info)
			}
		}
	}
}

// WithBasePath changes the prefix of derived paths, `/settings` by default.
// Operations given an explicit path are unaffected.
func WithBasePath(prefix string) GeneratorOption {
	return func(cfg *generatorConfig) {
		prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
		if prefix != "" && !strings.HasPrefix(prefix, "/") {
			prefix = "/" + prefix
		}
		cfg.basePath = prefix
	}
}

// OperationOption configures optional operation metadata.
type OperationOption func(*operationConfig)

// WithOperationSummary attaches a summary to the configured operation.
func WithOperationSummary(summary string) OperationOption {
	return func(operation *operationConfig) {
		operation.Summary = summary
	}
}

// WithOperation configures the write operation that takes the normalized map
// as its request body. Empty inputs retain the defaults; the path defaults to
// <base path>/<short name> and the method to PUT.
func WithOperation(path, method, operationID string, opts ...OperationOption) GeneratorOption {
	return func(cfg *generatorConfig) {
		applyOperation(&cfg.write, path, method, operationID, opts)
	}
}

// WithReadOperation adds an operation returning the stored normalized map.
// The method defaults to GET and the path to the write operation's path.
func WithReadOperation(path, method, operationID string, opts ...OperationOption) GeneratorOption {
	return func(cfg *generatorConfig) {
		read := operationConfig{Method: "get"}
		if cfg.read != nil {
			read = *cfg.read
		}
		applyOperation(&read, path, method, operationID, opts)
		cfg.read = &read
	}
}

func applyOperation(operation *operationConfig, path, method, operationID string, opts []OperationOption) {
	if path != "" {
		operation.Path = path
	}
	if method != "" {
		operation.Method = strings.ToLower(method)
	}
	if operationID != "" {
		operation.OperationID = operationID
	}
	for _, opt := range opts {
		if opt != nil {
			opt(operation)
		}
	}
}

// WithInstanceKeyParameter appends a `{name}` path segment selecting the
// instance key, for schemas stored once per tenant or account.
func WithInstanceKeyParameter(name string) GeneratorOption {
	return func(cfg *generatorConfig) {
		cfg.instanceKey = strings.TrimSpace(name)
	}
}

// WithContentType sets the media type of the normalized payload.
func WithContentType(contentType string) GeneratorOption {
	return func(cfg *generatorConfig) {
		if contentType == "" {
			return
		}
		cfg.contentType = contentType
	}
}

// ResponseOption configures additional response metadata.
type ResponseOption func(*responseConfig)

// WithResponse registers or overrides a write-operation response for the
// provided status code.
func WithResponse(status, description string, opts ...ResponseOption) GeneratorOption {
	return func(cfg *generatorConfig) {
		if status == "" {
			return
		}
		if cfg.responses == nil {
			cfg.responses = map[string]responseConfig{}
		}
		resp := cfg.responses[status]
		if description != "" {
			resp.Description = description
		}
		for _, opt := range opts {
			if opt != nil {
				opt(&resp)
			}
		}
		cfg.responses[status] = resp
	}
}

// WithRootComponent forces the root schema to be published under components
// with the provided name instead of inlining it in the operations.
func WithRootComponent(name string) GeneratorOption {
	return func(cfg *generatorConfig) {
		cfg.rootComponent = name
	}
}
