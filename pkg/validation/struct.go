// Package validation adapts go-playground/validator struct tags to the
// settings.Validator contract.
package validation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	settings "github.com/goliatone/go-settings"
)

// StructValidator decodes an instance into T and validates the result with
// `validate` struct tags. Violation paths use the `settings` tag names.
type StructValidator[T any] struct {
	validate *validator.Validate
	schema   string
}

// Option configures a StructValidator.
type Option func(*options)

type options struct {
	validate *validator.Validate
	schema   string
}

// WithValidate supplies a preconfigured validator instance.
func WithValidate(v *validator.Validate) Option {
	return func(o *options) {
		o.validate = v
	}
}

// ForSchema limits the validator to instances of one identity or short name.
func ForSchema(ref string) Option {
	return func(o *options) {
		o.schema = strings.TrimSpace(ref)
	}
}

// Struct returns a validator that binds instances to T.
func Struct[T any](opts ...Option) *StructValidator[T] {
	cfg := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	v := cfg.validate
	if v == nil {
		v = validator.New(validator.WithRequiredStructEnabled())
	}
	v.RegisterTagNameFunc(settingsFieldName)
	return &StructValidator[T]{validate: v, schema: cfg.schema}
}

// RegisterValidation adds a custom validation tag.
func (v *StructValidator[T]) RegisterValidation(tag string, fn validator.Func) error {
	return v.validate.RegisterValidation(tag, fn)
}

// Validate implements settings.Validator.
func (v *StructValidator[T]) Validate(ctx context.Context, inst *settings.Instance) ([]settings.Violation, error) {
	if inst == nil {
		return nil, fmt.Errorf("validation: nil instance")
	}
	if v.schema != "" {
		s := inst.Schema()
		if v.schema != s.Identity() && v.schema != s.ShortName() {
			return nil, nil
		}
	}
	value, err := settings.Decode[T](inst)
	if err != nil {
		return nil, fmt.Errorf("validation: decode %s: %w", inst.Schema().Identity(), err)
	}
	err = v.validate.StructCtx(ctx, value)
	if err == nil {
		return nil, nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return nil, fmt.Errorf("validation: %w", err)
	}
	violations := make([]settings.Violation, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		violations = append(violations, settings.Violation{
			Path:    fieldPath(fe.Namespace()),
			Message: message(fe),
			Code:    fe.Tag(),
		})
	}
	return violations, nil
}

func settingsFieldName(field reflect.StructField) string {
	tag := field.Tag.Get("settings")
	name, _, _ := strings.Cut(tag, ",")
	switch name {
	case "-":
		return ""
	case "":
		return field.Name
	default:
		return name
	}
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func message(fe validator.FieldError) string {
	if fe.Param() != "" {
		return fmt.Sprintf("%s must satisfy %s=%s", fieldPath(fe.Namespace()), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s must satisfy %s", fieldPath(fe.Namespace()), fe.Tag())
}
