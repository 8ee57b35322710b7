package settings

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Embed marks a struct field as an embedded settings property. The field's
// tag names the target with embed=<identity>.
type Embed struct{}

// StructOption adjusts a declaration produced by FromStruct.
type StructOption func(*Declaration)

// WithStorage binds the declaration to an adapter.
func WithStorage(adapter string, options map[string]any) StructOption {
	return func(d *Declaration) {
		d.Storage = Binding{Adapter: adapter, Options: copyMetadata(options)}
	}
}

// WithVersion marks the declaration as versioned and names its migration
// service.
func WithVersion(version int, migration string) StructOption {
	return func(d *Declaration) {
		d.Version = version
		d.Migration = migration
	}
}

// WithGroups sets the default group list.
func WithGroups(groups ...string) StructOption {
	return func(d *Declaration) {
		d.Groups = append([]string(nil), groups...)
	}
}

// WithName overrides the short name.
func WithName(name string) StructOption {
	return func(d *Declaration) {
		d.Name = name
	}
}

// WithReset attaches a reset hook.
func WithReset(hook ResetHook) StructOption {
	return func(d *Declaration) {
		d.Reset = hook
	}
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
	decimalType  = reflect.TypeOf(decimal.Decimal{})
	semverType   = reflect.TypeOf(semver.Version{})
	uuidType     = reflect.TypeOf(uuid.UUID{})
	embedType    = reflect.TypeOf(Embed{})
)

// FromStruct derives a declaration from the fields of sample that carry a
// `settings` tag. The sample's field values become the declared defaults.
//
// Tag syntax: `settings:"name,type=int,key=k,nullable,notnull,group=a|b,
// label=Text,description=Text,item=string,choices=a|b,embed=pkg.Target"`.
// The type is inferred from the field when omitted. Pointer and interface
// fields accept null.
func FromStruct(identity string, sample any, opts ...StructOption) (Declaration, error) {
	rv := reflect.ValueOf(sample)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			rv = reflect.New(rv.Type().Elem()).Elem()
			break
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return Declaration{}, schemaErrorf(identity, "", "FromStruct needs a struct, got %T", sample)
	}
	if identity == "" {
		identity = rv.Type().PkgPath() + "." + rv.Type().Name()
	}

	decl := Declaration{Identity: identity}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		raw, ok := field.Tag.Lookup("settings")
		if !ok || raw == "-" || !field.IsExported() {
			continue
		}
		tag := parseStructTag(raw)
		name := tag.name
		if name == "" {
			name = field.Name
		}
		if field.Type == embedType {
			target := tag.values["embed"]
			if target == "" {
				return Declaration{}, schemaErrorf(identity, name, "embed field needs embed=<identity>")
			}
			decl.Embeds = append(decl.Embeds, EmbedDecl{
				Name:   name,
				Target: target,
				Key:    tag.values["key"],
				Groups: tag.list("group"),
			})
			continue
		}
		param, err := structParameter(field, rv.Field(i), name, tag)
		if err != nil {
			return Declaration{}, &SchemaError{Identity: identity, Field: name, Err: err}
		}
		decl.Parameters = append(decl.Parameters, param)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&decl)
		}
	}
	return decl, nil
}

func structParameter(field reflect.StructField, value reflect.Value, name string, tag structTag) (ParameterDecl, error) {
	param := ParameterDecl{
		Name:        name,
		Type:        tag.values["type"],
		Key:         tag.values["key"],
		Groups:      tag.list("group"),
		Label:       tag.values["label"],
		Description: tag.values["description"],
	}
	if tag.flags["nullable"] {
		param.Nullable = boolPtr(true)
	}
	if tag.flags["notnull"] {
		param.Nullable = boolPtr(false)
	}
	if item := tag.values["item"]; item != "" {
		param.Options = ensureOptions(param.Options)
		param.Options["item"] = item
	}
	if choices := tag.list("choices"); len(choices) > 0 {
		param.Options = ensureOptions(param.Options)
		param.Options["choices"] = choices
	}

	ft := field.Type
	switch ft.Kind() {
	case reflect.Pointer:
		param.AcceptsNull = true
		if ft.Elem() != semverType {
			ft = ft.Elem()
		}
	case reflect.Interface:
		param.AcceptsNull = true
	}
	if param.Type == "" {
		inferred, item, err := inferType(ft)
		if err != nil {
			return ParameterDecl{}, err
		}
		param.Type = inferred
		if item != "" {
			param.Options = ensureOptions(param.Options)
			if _, set := param.Options["item"]; !set {
				param.Options["item"] = item
			}
		}
	}

	switch {
	case value.Kind() == reflect.Pointer && value.Type().Elem() != semverType:
		if !value.IsNil() {
			param.Default = value.Elem().Interface()
		}
	case value.Kind() == reflect.Interface:
		if !value.IsNil() {
			param.Default = value.Elem().Interface()
		}
	case value.Kind() == reflect.Pointer:
		if !value.IsNil() {
			param.Default = value.Interface()
		}
	case value.Kind() == reflect.Slice && value.IsNil():
		param.Default = []any{}
	default:
		param.Default = value.Interface()
	}
	return param, nil
}

func inferType(t reflect.Type) (string, string, error) {
	switch t {
	case durationType:
		return TypeDuration, "", nil
	case timeType:
		return TypeDatetime, "", nil
	case decimalType:
		return TypeDecimal, "", nil
	case uuidType:
		return TypeUUID, "", nil
	}
	if t.Kind() == reflect.Pointer && t.Elem() == semverType {
		return TypeSemver, "", nil
	}
	switch t.Kind() {
	case reflect.String:
		return TypeString, "", nil
	case reflect.Bool:
		return TypeBool, "", nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return TypeInt, "", nil
	case reflect.Float32, reflect.Float64:
		return TypeFloat, "", nil
	case reflect.Slice, reflect.Array:
		if t == uuidType {
			return TypeUUID, "", nil
		}
		item, _, err := inferType(t.Elem())
		if err != nil {
			return "", "", err
		}
		if item == TypeList {
			return "", "", fmt.Errorf("lists cannot nest")
		}
		return TypeList, item, nil
	default:
		return "", "", fmt.Errorf("cannot infer a parameter type for %s; set type=", t)
	}
}

type structTag struct {
	name   string
	values map[string]string
	flags  map[string]bool
}

func (t structTag) list(key string) []string {
	raw := t.values[key]
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, "|")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseStructTag(raw string) structTag {
	parts := strings.Split(raw, ",")
	tag := structTag{
		name:   strings.TrimSpace(parts[0]),
		values: map[string]string{},
		flags:  map[string]bool{},
	}
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if key, value, ok := strings.Cut(part, "="); ok {
			tag.values[strings.TrimSpace(key)] = strings.TrimSpace(value)
			continue
		}
		tag.flags[part] = true
	}
	return tag
}

func ensureOptions(options map[string]any) map[string]any {
	if options == nil {
		return map[string]any{}
	}
	return options
}

func boolPtr(v bool) *bool {
	return &v
}
