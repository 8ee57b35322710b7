package hydrate

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// TagName is the struct tag read when binding settings values to fields.
const TagName = "settings"

// Context carries identifiers tied to a settings payload.
type Context struct {
	Identity    string
	InstanceKey string
}

func (c Context) label() string {
	if c.InstanceKey == "" {
		return c.Identity
	}
	return c.Identity + "#" + c.InstanceKey
}

// PreHook lets callers mutate or normalise the payload before decoding.
type PreHook func(Context, map[string]any) (map[string]any, error)

// PostHook lets callers adjust or validate the hydrated struct after decoding.
type PostHook[T any] func(Context, *T) error

// CustomDecoder replaces the default mapstructure decoding when provided.
type CustomDecoder[T any] func(Context, map[string]any) (T, error)

// DecoderOption configures a Decoder instance.
type DecoderOption[T any] func(*Decoder[T])

// Decoder converts settings payloads into strongly typed structs.
type Decoder[T any] struct {
	preHooks    []PreHook
	postHooks   []PostHook[T]
	configure   []func(*mapstructure.DecoderConfig)
	custom      CustomDecoder[T]
	errorUnused bool
	weak        bool
}

// WithPreHook applies hook prior to decoding.
func WithPreHook[T any](hook PreHook) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.preHooks = append(d.preHooks, hook)
	}
}

// WithPostHook applies hook after decoding completes.
func WithPostHook[T any](hook PostHook[T]) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.postHooks = append(d.postHooks, hook)
	}
}

// WithErrorUnused fails decoding when the payload carries keys no field
// claims.
func WithErrorUnused[T any]() DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.errorUnused = true
	}
}

// WithWeaklyTypedInput lets mapstructure coerce between scalar kinds.
func WithWeaklyTypedInput[T any]() DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.weak = true
	}
}

// WithDecoderConfig allows callers to adjust the mapstructure configuration
// directly.
func WithDecoderConfig[T any](configure func(*mapstructure.DecoderConfig)) DecoderOption[T] {
	return func(d *Decoder[T]) {
		if configure != nil {
			d.configure = append(d.configure, configure)
		}
	}
}

// WithCustomDecoder replaces the default decoding path.
func WithCustomDecoder[T any](decoder CustomDecoder[T]) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.custom = decoder
	}
}

func NewDecoder[T any](opts ...DecoderOption[T]) *Decoder[T] {
	d := &Decoder[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Decode converts payload into the target struct T applying configured hooks.
func (d *Decoder[T]) Decode(ctx Context, payload map[string]any) (T, error) {
	var zero T

	if payload == nil {
		return zero, fmt.Errorf("hydrate: payload is nil for %q", ctx.label())
	}

	current := clonePayload(payload)
	for _, hook := range d.preHooks {
		if hook == nil {
			continue
		}
		next, err := hook(ctx, current)
		if err != nil {
			return zero, fmt.Errorf("hydrate: pre-hook for %q failed: %w", ctx.label(), err)
		}
		if next != nil {
			current = next
		}
	}

	var result T
	if d.custom != nil {
		var err error
		result, err = d.custom(ctx, current)
		if err != nil {
			return zero, fmt.Errorf("hydrate: custom decoder for %q failed: %w", ctx.label(), err)
		}
	} else if err := d.decodeInto(current, &result); err != nil {
		return zero, fmt.Errorf("hydrate: decode %q: %w", ctx.label(), err)
	}

	for _, hook := range d.postHooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, &result); err != nil {
			return zero, fmt.Errorf("hydrate: post-hook for %q failed: %w", ctx.label(), err)
		}
	}

	return result, nil
}

// Into decodes payload into out, which must be a non-nil pointer.
func Into(ctx Context, payload map[string]any, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("hydrate: target for %q must be a non-nil pointer, got %T", ctx.label(), out)
	}
	d := &Decoder[struct{}]{}
	if err := d.decodeInto(clonePayload(payload), out); err != nil {
		return fmt.Errorf("hydrate: decode %q: %w", ctx.label(), err)
	}
	return nil
}

func (d *Decoder[T]) decodeInto(payload map[string]any, out any) error {
	cfg := &mapstructure.DecoderConfig{
		Result:           out,
		TagName:          TagName,
		ErrorUnused:      d.errorUnused,
		WeaklyTypedInput: d.weak,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
			mapstructure.StringToSliceHookFunc(","),
		),
	}
	for _, configure := range d.configure {
		configure(cfg)
	}
	dec, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return err
	}
	return dec.Decode(payload)
}

// clonePayload copies the top level and any nested slices so hooks cannot
// mutate the caller's map. Leaf values are shared; typed settings values are
// treated as immutable.
func clonePayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for key, value := range payload {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return clonePayload(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return value
	}
}
