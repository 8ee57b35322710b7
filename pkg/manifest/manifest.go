// Package manifest reads settings declarations from a YAML document. It is
// the file-based counterpart of registering settings.Declaration values by
// hand: each entry becomes a catalog declaration, inline migration steps
// become a StepMigrator service and rules feed a RuleValidator.
//
//	engine: expr
//	settings:
//	  - identity: app.MailerSettings
//	    version: 2
//	    storage: {adapter: default, options: {scope: tenant}}
//	    parameters:
//	      - {name: host, type: string, default: localhost}
//	      - {name: timeout, type: duration, default: 30s}
//	    embeds:
//	      - {name: credentials, target: app.Credentials}
//	    migrations:
//	      - from: 1
//	        set: [{key: host, expr: "legacy_host ?? 'localhost'"}]
//	        drop: [legacy_host]
//	rules:
//	  - {schema: mailer, path: port, expr: "port > 0", message: port must be positive}
//
// Defaults are written in their stored form and converted through the
// parameter type, so `30s` becomes a time.Duration.
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	settings "github.com/goliatone/go-settings"
	"gopkg.in/yaml.v3"
)

// ServicePrefix prefixes the migration service names generated for inline
// migrations.
const ServicePrefix = "manifest:"

// Document is the YAML shape of a manifest.
type Document struct {
	Engine   string          `yaml:"engine,omitempty"`
	Settings []Entry         `yaml:"settings"`
	Rules    []settings.Rule `yaml:"rules,omitempty"`
}

// Entry declares one settings class.
type Entry struct {
	Identity   string           `yaml:"identity"`
	Name       string           `yaml:"name,omitempty"`
	Storage    settings.Binding `yaml:"storage,omitempty"`
	Version    int              `yaml:"version,omitempty"`
	Migration  string           `yaml:"migration,omitempty"`
	Groups     []string         `yaml:"groups,omitempty"`
	Parameters []Parameter      `yaml:"parameters,omitempty"`
	Embeds     []Embed          `yaml:"embeds,omitempty"`
	Migrations []MigrationStep  `yaml:"migrations,omitempty"`
}

// Parameter declares one typed parameter.
type Parameter struct {
	Name        string         `yaml:"name"`
	Type        string         `yaml:"type"`
	Key         string         `yaml:"key,omitempty"`
	Default     any            `yaml:"default,omitempty"`
	Nullable    *bool          `yaml:"nullable,omitempty"`
	Groups      []string       `yaml:"groups,omitempty"`
	Options     map[string]any `yaml:"options,omitempty"`
	Label       string         `yaml:"label,omitempty"`
	Description string         `yaml:"description,omitempty"`
}

// Embed declares an embedded settings property.
type Embed struct {
	Name   string   `yaml:"name"`
	Target string   `yaml:"target"`
	Key    string   `yaml:"key,omitempty"`
	Groups []string `yaml:"groups,omitempty"`
}

// MigrationStep upgrades stored data from version From to From+1.
type MigrationStep struct {
	From int                   `yaml:"from"`
	Set  []settings.Assignment `yaml:"set,omitempty"`
	Drop []string              `yaml:"drop,omitempty"`
}

// Manifest is a parsed document ready to wire into a Manager.
type Manifest struct {
	Catalog   *settings.Catalog
	Services  map[string]*settings.StepMigrator
	Rules     []settings.Rule
	Evaluator settings.Evaluator
}

// Load reads and parses the manifest at path.
func Load(path string, registry *settings.Registry) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	m, err := Parse(raw, registry)
	if err != nil {
		return nil, fmt.Errorf("manifest: %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes raw. Unknown fields are rejected. A nil registry uses the
// built-in parameter types.
func Parse(raw []byte, registry *settings.Registry) (*Manifest, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("manifest: decode: %w", err)
	}
	return Build(doc, registry)
}

// Build turns a decoded document into a manifest.
func Build(doc Document, registry *settings.Registry) (*Manifest, error) {
	if registry == nil {
		registry = settings.DefaultRegistry()
	}
	evaluator, err := settings.NewEvaluator(doc.Engine, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	catalog, err := settings.NewCatalog()
	if err != nil {
		return nil, err
	}
	m := &Manifest{
		Catalog:   catalog,
		Services:  map[string]*settings.StepMigrator{},
		Rules:     append([]settings.Rule(nil), doc.Rules...),
		Evaluator: evaluator,
	}
	for i, entry := range doc.Settings {
		decl, err := m.declaration(entry, registry)
		if err != nil {
			return nil, fmt.Errorf("manifest: settings[%d]: %w", i, err)
		}
		if err := catalog.Register(decl); err != nil {
			return nil, fmt.Errorf("manifest: settings[%d]: %w", i, err)
		}
	}
	return m, nil
}

func (m *Manifest) declaration(entry Entry, registry *settings.Registry) (settings.Declaration, error) {
	decl := settings.Declaration{
		Identity:  strings.TrimSpace(entry.Identity),
		Name:      entry.Name,
		Storage:   entry.Storage,
		Version:   entry.Version,
		Migration: entry.Migration,
		Groups:    entry.Groups,
	}
	for _, p := range entry.Parameters {
		def, err := typedDefault(registry, p)
		if err != nil {
			return settings.Declaration{}, fmt.Errorf("%s.%s: %w", decl.Identity, p.Name, err)
		}
		decl.Parameters = append(decl.Parameters, settings.ParameterDecl{
			Name:        p.Name,
			Type:        p.Type,
			Key:         p.Key,
			Default:     def,
			Nullable:    p.Nullable,
			Groups:      p.Groups,
			Options:     p.Options,
			Label:       p.Label,
			Description: p.Description,
		})
	}
	for _, e := range entry.Embeds {
		decl.Embeds = append(decl.Embeds, settings.EmbedDecl{
			Name:   e.Name,
			Target: e.Target,
			Key:    e.Key,
			Groups: e.Groups,
		})
	}
	if len(entry.Migrations) == 0 {
		return decl, nil
	}
	if decl.Migration == "" {
		decl.Migration = ServicePrefix + decl.Identity
	}
	service, ok := m.Services[decl.Migration]
	if !ok {
		service = settings.NewStepMigrator()
		m.Services[decl.Migration] = service
	}
	for _, step := range entry.Migrations {
		if err := service.Register(step.From, settings.ExprStep(m.Evaluator, step.Set, step.Drop...)); err != nil {
			return settings.Declaration{}, fmt.Errorf("%s: %w", decl.Identity, err)
		}
	}
	return decl, nil
}

// typedDefault converts a default written in stored form into the typed
// value the declaration expects.
func typedDefault(registry *settings.Registry, p Parameter) (any, error) {
	if p.Default == nil {
		return nil, nil
	}
	normalized, err := settings.NormalizeValue(p.Default)
	if err != nil {
		return nil, fmt.Errorf("default: %w", err)
	}
	meta := settings.ParameterMetadata{
		Name:     p.Name,
		Type:     p.Type,
		Key:      p.Key,
		Options:  p.Options,
		Nullable: true,
	}
	return registry.Denormalize(nil, meta, normalized)
}

// Options returns the manager options that bind the manifest's migration
// services and, when rules are declared, a rule validator.
func (m *Manifest) Options() []settings.Option {
	opts := make([]settings.Option, 0, len(m.Services)+1)
	for name, service := range m.Services {
		opts = append(opts, settings.WithMigrationService(name, service))
	}
	if len(m.Rules) > 0 {
		opts = append(opts, settings.WithValidator(settings.NewRuleValidator(m.Evaluator, m.Rules...)))
	}
	if m.Evaluator != nil {
		opts = append(opts, settings.WithEvaluator(m.Evaluator))
	}
	return opts
}

// NewManager builds a manager over the manifest's catalog with its options
// applied before extra.
func (m *Manifest) NewManager(extra ...settings.Option) (*settings.Manager, error) {
	return settings.NewManager(m.Catalog, append(m.Options(), extra...)...)
}
