package settings

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSchema marks malformed or inconsistent declarations.
	ErrSchema = errors.New("settings: schema error")
	// ErrTypeMismatch marks a typed value whose kind does not match its converter.
	ErrTypeMismatch = errors.New("settings: type mismatch")
	// ErrNormalization marks stored data that could not be coerced on load.
	ErrNormalization = errors.New("settings: normalization error")
	// ErrMigration marks a failed or unavailable migration.
	ErrMigration = errors.New("settings: migration error")
	// ErrValidationFailed marks a save rejected by the validator.
	ErrValidationFailed = errors.New("settings: validation failed")
	// ErrStorage marks an adapter failure.
	ErrStorage = errors.New("settings: storage error")

	// ErrUnknownDeclaration is returned by declaration sources for identities
	// they do not know about.
	ErrUnknownDeclaration = errors.New("settings: unknown declaration")
	// ErrUnknownParameter is returned when an instance is asked for a
	// parameter its schema does not declare.
	ErrUnknownParameter = errors.New("settings: unknown parameter")
	// ErrUnknownEmbed is returned when an instance is asked for an embed its
	// schema does not declare.
	ErrUnknownEmbed = errors.New("settings: unknown embed")
	// ErrForeignInstance is returned when a unit of work is handed an
	// instance another unit resolved.
	ErrForeignInstance = errors.New("settings: instance belongs to another unit of work")
	// ErrInstanceNotReady is returned when an instance whose load is still
	// running is saved or reset.
	ErrInstanceNotReady = errors.New("settings: instance is still loading")
)

// SchemaError reports a declaration that cannot produce a schema.
type SchemaError struct {
	Identity string
	Field    string
	Err      error
}

func (e *SchemaError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString("settings: schema")
	if e.Identity != "" {
		fmt.Fprintf(&b, " %q", e.Identity)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field %q", e.Field)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *SchemaError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

func schemaErrorf(identity, field, format string, args ...any) error {
	return &SchemaError{Identity: identity, Field: field, Err: fmt.Errorf(format, args...)}
}

// TypeMismatchError reports a typed value handed to the wrong converter.
type TypeMismatchError struct {
	Parameter string
	Type      string
	Value     any
	Err       error
}

func (e *TypeMismatchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("settings: parameter %q expects %s, got %T", e.Parameter, e.Type, e.Value)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TypeMismatchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}

// NormalizationError reports stored data that a converter refused to load.
type NormalizationError struct {
	Identity  string
	Parameter string
	Type      string
	Value     any
	Err       error
}

func (e *NormalizationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("settings: cannot load %v (%T) into %s parameter %q", e.Value, e.Value, e.Type, e.Parameter)
	if e.Identity != "" {
		msg += fmt.Sprintf(" of %q", e.Identity)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NormalizationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *NormalizationError) Is(target error) bool {
	return target == ErrNormalization
}

// MigrationError reports a migration that failed or could not run.
type MigrationError struct {
	Identity string
	From     int
	To       int
	Service  string
	Err      error
}

func (e *MigrationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("settings: migrate %q from v%d to v%d", e.Identity, e.From, e.To)
	if e.Service != "" {
		msg += fmt.Sprintf(" via %q", e.Service)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MigrationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *MigrationError) Is(target error) bool {
	return target == ErrMigration
}

// Violation is a single structured validation failure.
type Violation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (v Violation) String() string {
	if v.Path == "" {
		return v.Message
	}
	return v.Path + ": " + v.Message
}

// ValidationFailedError carries the violations that rejected a save.
type ValidationFailedError struct {
	Identity   string
	Violations []Violation
}

func (e *ValidationFailedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("settings: validation failed for %q: %s", e.Identity, strings.Join(parts, "; "))
}

func (e *ValidationFailedError) Is(target error) bool {
	return target == ErrValidationFailed
}

// StorageError wraps an adapter error unchanged.
type StorageError struct {
	Op       string
	Identity string
	Adapter  string
	Err      error
}

func (e *StorageError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("settings: %s %q via adapter %q: %v", e.Op, e.Identity, e.Adapter, e.Err)
}

func (e *StorageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}
