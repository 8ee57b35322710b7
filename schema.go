package settings

import (
	"fmt"
	"strings"
)

// ParameterMetadata describes one typed parameter of a schema.
type ParameterMetadata struct {
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Key         string         `json:"key"`
	Nullable    bool           `json:"nullable"`
	Default     any            `json:"default,omitempty"`
	Groups      []string       `json:"groups,omitempty"`
	Options     map[string]any `json:"options,omitempty"`
	Label       string         `json:"label,omitempty"`
	Description string         `json:"description,omitempty"`
}

// InGroups reports whether the parameter belongs to any of groups. A call
// without groups matches everything.
func (p ParameterMetadata) InGroups(groups ...string) bool {
	return groupsOverlap(p.Groups, groups)
}

// EmbedMetadata describes a property that resolves to another settings
// instance.
type EmbedMetadata struct {
	Name   string   `json:"name"`
	Target string   `json:"target"`
	Key    string   `json:"key"`
	Groups []string `json:"groups,omitempty"`
}

// InGroups reports whether the embed belongs to any of groups.
func (e EmbedMetadata) InGroups(groups ...string) bool {
	return groupsOverlap(e.Groups, groups)
}

// Schema is the immutable description of a settings class. Accessors return
// copies so callers cannot mutate shared state.
type Schema struct {
	identity   string
	shortName  string
	parameters []ParameterMetadata
	embeds     []EmbedMetadata
	storage    Binding
	version    int
	migration  string
	groups     []string
	reset      ResetHook
	paramIndex map[string]int
	embedIndex map[string]int
}

// Identity returns the stable class identifier.
func (s *Schema) Identity() string {
	if s == nil {
		return ""
	}
	return s.identity
}

// ShortName returns the unique short name used for lookups.
func (s *Schema) ShortName() string {
	if s == nil {
		return ""
	}
	return s.shortName
}

// Version returns the declared version; ok is false for unversioned schemas.
func (s *Schema) Version() (version int, ok bool) {
	if s == nil || s.version == 0 {
		return 0, false
	}
	return s.version, true
}

// Migration returns the name of the bound migration service.
func (s *Schema) Migration() string {
	if s == nil {
		return ""
	}
	return s.migration
}

// Storage returns a copy of the adapter binding.
func (s *Schema) Storage() Binding {
	if s == nil {
		return Binding{}
	}
	return s.storage.clone()
}

// Groups returns the default group set.
func (s *Schema) Groups() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.groups...)
}

// Parameters returns the parameters in declaration order.
func (s *Schema) Parameters() []ParameterMetadata {
	if s == nil {
		return nil
	}
	out := make([]ParameterMetadata, len(s.parameters))
	for i, p := range s.parameters {
		out[i] = p.clone()
	}
	return out
}

// Embeds returns the embeds in declaration order.
func (s *Schema) Embeds() []EmbedMetadata {
	if s == nil {
		return nil
	}
	out := make([]EmbedMetadata, len(s.embeds))
	for i, e := range s.embeds {
		out[i] = e.clone()
	}
	return out
}

// Parameter looks a parameter up by property name.
func (s *Schema) Parameter(name string) (ParameterMetadata, bool) {
	if s == nil {
		return ParameterMetadata{}, false
	}
	idx, ok := s.paramIndex[name]
	if !ok {
		return ParameterMetadata{}, false
	}
	return s.parameters[idx].clone(), true
}

// Embed looks an embed up by property name.
func (s *Schema) Embed(name string) (EmbedMetadata, bool) {
	if s == nil {
		return EmbedMetadata{}, false
	}
	idx, ok := s.embedIndex[name]
	if !ok {
		return EmbedMetadata{}, false
	}
	return s.embeds[idx].clone(), true
}

// ParametersInGroups returns the parameters visible to any of groups. Groups
// only shape what presentation layers see; they never restrict load or save.
func (s *Schema) ParametersInGroups(groups ...string) []ParameterMetadata {
	var out []ParameterMetadata
	for _, p := range s.Parameters() {
		if p.InGroups(groups...) {
			out = append(out, p)
		}
	}
	return out
}

// EmbedsInGroups returns the embeds visible to any of groups.
func (s *Schema) EmbedsInGroups(groups ...string) []EmbedMetadata {
	var out []EmbedMetadata
	for _, e := range s.Embeds() {
		if e.InGroups(groups...) {
			out = append(out, e)
		}
	}
	return out
}

func (s *Schema) resetHook() ResetHook {
	if s == nil {
		return nil
	}
	return s.reset
}

func (p ParameterMetadata) clone() ParameterMetadata {
	out := p
	out.Groups = append([]string(nil), p.Groups...)
	if len(p.Groups) == 0 {
		out.Groups = nil
	}
	out.Options = copyMetadata(p.Options)
	out.Default = cloneNormalized(p.Default)
	return out
}

func (e EmbedMetadata) clone() EmbedMetadata {
	out := e
	out.Groups = append([]string(nil), e.Groups...)
	if len(e.Groups) == 0 {
		out.Groups = nil
	}
	return out
}

func groupsOverlap(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// Builder turns declarations into schemas. It holds no state beyond its
// collaborators, so Build is deterministic for a given declaration.
type Builder struct {
	Source   DeclarationSource
	Registry *Registry
	// DefaultAdapter is used when a declaration leaves Storage.Adapter empty.
	DefaultAdapter string
}

// Build produces the schema for identity.
func (b Builder) Build(identity string) (*Schema, error) {
	if b.Source == nil {
		return nil, &SchemaError{Identity: identity, Err: fmt.Errorf("declaration source is required")}
	}
	if b.Registry == nil {
		return nil, &SchemaError{Identity: identity, Err: fmt.Errorf("parameter registry is required")}
	}
	decl, err := b.Source.Declaration(identity)
	if err != nil {
		return nil, &SchemaError{Identity: identity, Err: err}
	}
	return b.BuildDeclaration(decl)
}

// BuildDeclaration validates decl and freezes it into a schema.
func (b Builder) BuildDeclaration(decl Declaration) (*Schema, error) {
	identity := decl.Identity
	if identity == "" {
		return nil, &SchemaError{Err: fmt.Errorf("declaration identity must not be empty")}
	}
	if decl.Version < 0 {
		return nil, schemaErrorf(identity, "", "version must be positive, got %d", decl.Version)
	}
	if decl.Version > 0 && strings.TrimSpace(decl.Migration) == "" {
		return nil, schemaErrorf(identity, "", "version %d declared without a migration service", decl.Version)
	}

	storage := decl.Storage.clone()
	if storage.Adapter == "" {
		storage.Adapter = b.DefaultAdapter
	}
	if storage.Adapter == "" {
		return nil, schemaErrorf(identity, "", "storage adapter binding is required")
	}

	s := &Schema{
		identity:   identity,
		shortName:  ShortName(decl),
		storage:    storage,
		version:    decl.Version,
		migration:  strings.TrimSpace(decl.Migration),
		groups:     sortedGroups(decl.Groups),
		reset:      decl.Reset,
		paramIndex: make(map[string]int, len(decl.Parameters)),
		embedIndex: make(map[string]int, len(decl.Embeds)),
	}
	if s.shortName == "" {
		return nil, schemaErrorf(identity, "", "short name resolves to empty")
	}

	keys := map[string]string{}
	claimKey := func(name, key string) error {
		if key == VersionKey {
			return schemaErrorf(identity, name, "storage key %q is reserved", key)
		}
		if owner, taken := keys[key]; taken {
			return schemaErrorf(identity, name, "storage key %q already used by %q", key, owner)
		}
		keys[key] = name
		return nil
	}
	names := map[string]struct{}{}
	claimName := func(name string) error {
		if strings.TrimSpace(name) == "" {
			return schemaErrorf(identity, "", "property name must not be empty")
		}
		if _, taken := names[name]; taken {
			return schemaErrorf(identity, name, "property declared twice")
		}
		names[name] = struct{}{}
		return nil
	}

	for _, pd := range decl.Parameters {
		if err := claimName(pd.Name); err != nil {
			return nil, err
		}
		param, err := b.parameter(s, pd)
		if err != nil {
			return nil, err
		}
		if err := claimKey(param.Name, param.Key); err != nil {
			return nil, err
		}
		s.paramIndex[param.Name] = len(s.parameters)
		s.parameters = append(s.parameters, param)
	}

	for _, ed := range decl.Embeds {
		if err := claimName(ed.Name); err != nil {
			return nil, err
		}
		target := strings.TrimSpace(ed.Target)
		if target == "" {
			return nil, schemaErrorf(identity, ed.Name, "embed target must not be empty")
		}
		// Only existence is checked; the target is built lazily by identity.
		if target != identity {
			if _, err := b.Source.Declaration(target); err != nil {
				return nil, &SchemaError{Identity: identity, Field: ed.Name, Err: err}
			}
		}
		embed := EmbedMetadata{
			Name:   ed.Name,
			Target: target,
			Key:    firstNonEmpty(ed.Key, ed.Name),
			Groups: groupsOrDefault(ed.Groups, s.groups),
		}
		if err := claimKey(embed.Name, embed.Key); err != nil {
			return nil, err
		}
		s.embedIndex[embed.Name] = len(s.embeds)
		s.embeds = append(s.embeds, embed)
	}
	return s, nil
}

func (b Builder) parameter(s *Schema, pd ParameterDecl) (ParameterMetadata, error) {
	t, ok := b.Registry.Lookup(pd.Type)
	if !ok {
		return ParameterMetadata{}, schemaErrorf(s.identity, pd.Name, "unknown parameter type %q", pd.Type)
	}
	nullable := pd.AcceptsNull || pd.Default == nil
	if pd.Nullable != nil {
		nullable = *pd.Nullable
	}
	param := ParameterMetadata{
		Name:        pd.Name,
		Type:        t.Name(),
		Key:         firstNonEmpty(pd.Key, pd.Name),
		Nullable:    nullable,
		Groups:      groupsOrDefault(pd.Groups, s.groups),
		Options:     copyMetadata(pd.Options),
		Label:       pd.Label,
		Description: pd.Description,
	}
	if v, ok := t.(OptionValidator); ok {
		if err := v.ValidateOptions(param); err != nil {
			return ParameterMetadata{}, &SchemaError{Identity: s.identity, Field: pd.Name, Err: err}
		}
	}
	def, err := b.Registry.Canonicalize(s, param, pd.Default)
	if err != nil {
		return ParameterMetadata{}, &SchemaError{Identity: s.identity, Field: pd.Name, Err: fmt.Errorf("invalid default: %w", err)}
	}
	param.Default = cloneNormalized(def)
	return param, nil
}

func groupsOrDefault(groups, defaults []string) []string {
	if normalized := sortedGroups(groups); len(normalized) > 0 {
		return normalized
	}
	return append([]string(nil), defaults...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
