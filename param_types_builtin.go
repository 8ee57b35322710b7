package settings

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	str2duration "github.com/xhit/go-str2duration/v2"
)

// Built-in parameter type names.
const (
	TypeString   = "string"
	TypeInt      = "int"
	TypeFloat    = "float"
	TypeBool     = "bool"
	TypeList     = "list"
	TypeChoice   = "choice"
	TypeDuration = "duration"
	TypeDatetime = "datetime"
	TypeDecimal  = "decimal"
	TypeSemver   = "semver"
	TypeUUID     = "uuid"
)

// OptionValidator is implemented by parameter types that need to check their
// type-specific options when a schema is built.
type OptionValidator interface {
	ValidateOptions(param ParameterMetadata) error
}

func builtinTypes(r *Registry) []ParameterType {
	return []ParameterType{
		NewParameterType(TypeString, stringToNormalized, stringToTyped),
		NewParameterType(TypeInt, intToNormalized, intToTyped),
		NewParameterType(TypeFloat, floatToNormalized, floatToTyped),
		NewParameterType(TypeBool, boolToNormalized, boolToTyped),
		listType{lookup: r.Lookup},
		choiceType{},
		NewParameterType(TypeDuration, durationToNormalized, durationToTyped),
		NewParameterType(TypeDatetime, datetimeToNormalized, datetimeToTyped),
		NewParameterType(TypeDecimal, decimalToNormalized, decimalToTyped),
		NewParameterType(TypeSemver, semverToNormalized, semverToTyped),
		NewParameterType(TypeUUID, uuidToNormalized, uuidToTyped),
	}
}

func stringToNormalized(value any, _ *Schema, _ ParameterMetadata) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("not a string")
	}
	return s, nil
}

func stringToTyped(value any, _ *Schema, _ ParameterMetadata) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case int64, float64, bool:
		return cast.ToStringE(v)
	default:
		return nil, fmt.Errorf("cannot read %T as string", value)
	}
}

func intToNormalized(value any, _ *Schema, _ ParameterMetadata) (any, error) {
	switch reflect.ValueOf(value).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return NormalizeValue(value)
	default:
		return nil, fmt.Errorf("not an integer")
	}
}

func intToTyped(value any, _ *Schema, _ ParameterMetadata) (any, error) {
	switch v := value.(type) {
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("float %v is not integral", v)
		}
		if v < math.MinInt64 || v >= math.MaxInt64 {
			return nil, fmt.Errorf("float %v overflows int64", v)
		}
		return int(v), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, err
		}
		return int(n), nil
	default:
		return nil, fmt.Errorf("cannot read %T as int", value)
	}
}

func floatToNormalized(value any, _ *Schema, _ ParameterMetadata) (any, error) {
	switch reflect.ValueOf(value).Kind() {
	case reflect.Float32, reflect.Float64:
		return reflect.ValueOf(value).Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(reflect.ValueOf(value).Int()), nil
	default:
		return nil, fmt.Errorf("not a number")
	}
}

func floatToTyped(value any, _ *Schema, _ ParameterMetadata) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case string:
		return cast.ToFloat64E(strings.TrimSpace(v))
	default:
		return nil, fmt.Errorf("cannot read %T as float", value)
	}
}

func boolToNormalized(value any, _ *Schema, _ ParameterMetadata) (any, error) {
	b, ok := value.(bool)
	if !ok {
		return nil, fmt.Errorf("not a bool")
	}
	return b, nil
}

func boolToTyped(value any, _ *Schema, _ ParameterMetadata) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int64:
		if v != 0 && v != 1 {
			return nil, fmt.Errorf("integer %d is not a bool", v)
		}
		return v == 1, nil
	case string:
		return cast.ToBoolE(strings.TrimSpace(v))
	default:
		return nil, fmt.Errorf("cannot read %T as bool", value)
	}
}

// listType stores homogeneous arrays; the "item" option names the element
// type and defaults to string.
type listType struct {
	lookup func(string) (ParameterType, bool)
}

func (listType) Name() string { return TypeList }

func (t listType) item(param ParameterMetadata) (ParameterType, ParameterMetadata, error) {
	name := TypeString
	if raw, ok := param.Options["item"]; ok {
		s, ok := raw.(string)
		if !ok || s == "" {
			return nil, ParameterMetadata{}, fmt.Errorf("list option item must be a type name")
		}
		name = s
	}
	if strings.EqualFold(name, TypeList) {
		return nil, ParameterMetadata{}, fmt.Errorf("lists cannot nest")
	}
	item, ok := t.lookup(name)
	if !ok {
		return nil, ParameterMetadata{}, fmt.Errorf("unknown list item type %q", name)
	}
	itemParam := ParameterMetadata{Name: param.Name + "[]", Type: name, Key: param.Key}
	if opts, ok := param.Options["item_options"].(map[string]any); ok {
		itemParam.Options = opts
	}
	return item, itemParam, nil
}

func (t listType) ValidateOptions(param ParameterMetadata) error {
	_, _, err := t.item(param)
	return err
}

func (t listType) ToNormalized(value any, schema *Schema, param ParameterMetadata) (any, error) {
	item, itemParam, err := t.item(param)
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("not a list")
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		elem := rv.Index(i).Interface()
		if elem == nil {
			return nil, fmt.Errorf("index %d: list items must not be null", i)
		}
		converted, err := item.ToNormalized(elem, schema, itemParam)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		out[i] = converted
	}
	return out, nil
}

func (t listType) ToTyped(value any, schema *Schema, param ParameterMetadata) (any, error) {
	item, itemParam, err := t.item(param)
	if err != nil {
		return nil, err
	}
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("cannot read %T as list", value)
	}
	out := make([]any, len(items))
	for i, elem := range items {
		if elem == nil {
			return nil, fmt.Errorf("index %d: list items must not be null", i)
		}
		converted, err := item.ToTyped(elem, schema, itemParam)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		out[i] = converted
	}
	return out, nil
}

// choiceType stores a string restricted to the "choices" option.
type choiceType struct{}

func (choiceType) Name() string { return TypeChoice }

func (choiceType) choices(param ParameterMetadata) ([]string, error) {
	raw, ok := param.Options["choices"]
	if !ok {
		return nil, fmt.Errorf("choice requires a choices option")
	}
	out, err := cast.ToStringSliceE(raw)
	if err != nil || len(out) == 0 {
		return nil, fmt.Errorf("choices option must be a non-empty list of strings")
	}
	return out, nil
}

func (t choiceType) ValidateOptions(param ParameterMetadata) error {
	_, err := t.choices(param)
	return err
}

func (t choiceType) check(s string, param ParameterMetadata) (any, error) {
	choices, err := t.choices(param)
	if err != nil {
		return nil, err
	}
	for _, choice := range choices {
		if choice == s {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%q is not one of %v", s, choices)
}

func (t choiceType) ToNormalized(value any, _ *Schema, param ParameterMetadata) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("not a string")
	}
	return t.check(s, param)
}

func (t choiceType) ToTyped(value any, _ *Schema, param ParameterMetadata) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("cannot read %T as choice", value)
	}
	return t.check(s, param)
}

func durationToNormalized(value any, _ *Schema, _ ParameterMetadata) (any, error) {
	d, ok := value.(time.Duration)
	if !ok {
		return nil, fmt.Errorf("not a time.Duration")
	}
	return d.String(), nil
}

func durationToTyped(value any, _ *Schema, _ ParameterMetadata) (any, error) {
	switch v := value.(type) {
	case string:
		s := strings.TrimSpace(v)
		if d, err := time.ParseDuration(s); err == nil {
			return d, nil
		}
		return str2duration.ParseDuration(s)
	case int64:
		return time.Duration(v), nil
	default:
		return nil, fmt.Errorf("cannot read %T as duration", value)
	}
}

func datetimeToNormalized(value any, _ *Schema, _ ParameterMetadata) (any, error) {
	t, ok := value.(time.Time)
	if !ok {
		return nil, fmt.Errorf("not a time.Time")
	}
	return t.Format(time.RFC3339Nano), nil
}

func datetimeToTyped(value any, _ *Schema, _ ParameterMetadata) (any, error) {
	switch v := value.(type) {
	case string:
		return time.Parse(time.RFC3339Nano, strings.TrimSpace(v))
	case int64:
		return time.Unix(v, 0).UTC(), nil
	default:
		return nil, fmt.Errorf("cannot read %T as datetime", value)
	}
}

func decimalToNormalized(value any, _ *Schema, _ ParameterMetadata) (any, error) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v.String(), nil
	case *decimal.Decimal:
		return v.String(), nil
	default:
		return nil, fmt.Errorf("not a decimal.Decimal")
	}
}

func decimalToTyped(value any, _ *Schema, _ ParameterMetadata) (any, error) {
	switch v := value.(type) {
	case string:
		return decimal.NewFromString(strings.TrimSpace(v))
	case int64:
		return decimal.NewFromInt(v), nil
	case float64:
		return decimal.NewFromFloat(v), nil
	default:
		return nil, fmt.Errorf("cannot read %T as decimal", value)
	}
}

func semverToNormalized(value any, _ *Schema, _ ParameterMetadata) (any, error) {
	switch v := value.(type) {
	case *semver.Version:
		return v.String(), nil
	case semver.Version:
		return v.String(), nil
	default:
		return nil, fmt.Errorf("not a semver.Version")
	}
}

func semverToTyped(value any, _ *Schema, _ ParameterMetadata) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("cannot read %T as semver", value)
	}
	return semver.NewVersion(strings.TrimSpace(s))
}

func uuidToNormalized(value any, _ *Schema, _ ParameterMetadata) (any, error) {
	id, ok := value.(uuid.UUID)
	if !ok {
		return nil, fmt.Errorf("not a uuid.UUID")
	}
	return id.String(), nil
}

func uuidToTyped(value any, _ *Schema, _ ParameterMetadata) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("cannot read %T as uuid", value)
	}
	return uuid.Parse(strings.TrimSpace(s))
}

func isNilPointer(value any) bool {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
