package activity

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Event describes a change to one settings instance. Identity, ShortName and
// InstanceKey name the instance; ObjectID is derived from them when unset.
type Event struct {
	Verb           string
	ActorID        string
	UserID         string
	TenantID       string
	Identity       string
	ShortName      string
	InstanceKey    string
	ObjectType     string
	ObjectID       string
	Channel        string
	DefinitionCode string
	Recipients     []string
	Metadata       map[string]any
	OccurredAt     time.Time
}

// ActivityHook receives normalized activity events.
type ActivityHook interface {
	Notify(ctx context.Context, event Event) error
}

// HookFunc allows plain functions to satisfy ActivityHook.
type HookFunc func(ctx context.Context, event Event) error

// Notify dispatches to the underlying function.
func (fn HookFunc) Notify(ctx context.Context, event Event) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, event)
}

// Hooks fans out events to zero or more hooks.
type Hooks []ActivityHook

// Enabled reports whether there are any hooks to notify.
func (h Hooks) Enabled() bool {
	return len(h) > 0
}

// Compact returns a copy of h without nil entries, or nil when none remain.
func (h Hooks) Compact() Hooks {
	var out Hooks
	for _, hook := range h {
		if hook == nil {
			continue
		}
		if fn, ok := hook.(HookFunc); ok && fn == nil {
			continue
		}
		out = append(out, hook)
	}
	return out
}

// Notify normalizes event and forwards it to every hook, joining their
// errors. Events without a verb or an object to attach to are dropped.
func (h Hooks) Notify(ctx context.Context, event Event) error {
	if len(h) == 0 {
		return nil
	}

	normalized := NormalizeEvent(event)
	if normalized.Verb == "" || normalized.ObjectID == "" {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var errs []error
	for _, hook := range h {
		if hook == nil {
			continue
		}
		if err := hook.Notify(ctx, normalized); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NormalizeEvent trims every string field, clones metadata and recipients,
// and fills the object reference and timestamp.
func NormalizeEvent(event Event) Event {
	normalized := event
	normalized.Verb = strings.TrimSpace(event.Verb)
	normalized.ActorID = strings.TrimSpace(event.ActorID)
	normalized.UserID = strings.TrimSpace(event.UserID)
	normalized.TenantID = strings.TrimSpace(event.TenantID)
	normalized.Identity = strings.TrimSpace(event.Identity)
	normalized.ShortName = strings.TrimSpace(event.ShortName)
	normalized.InstanceKey = strings.TrimSpace(event.InstanceKey)
	normalized.ObjectType = strings.TrimSpace(event.ObjectType)
	normalized.ObjectID = strings.TrimSpace(event.ObjectID)
	normalized.Channel = strings.TrimSpace(event.Channel)
	normalized.DefinitionCode = strings.TrimSpace(event.DefinitionCode)
	normalized.Metadata = cloneMap(event.Metadata)
	if len(event.Recipients) > 0 {
		normalized.Recipients = append([]string{}, event.Recipients...)
	} else {
		normalized.Recipients = nil
	}
	if normalized.ObjectID == "" {
		normalized.ObjectID = ObjectID(normalized.Identity, normalized.InstanceKey)
	}
	if normalized.ObjectType == "" && normalized.Identity != "" {
		normalized.ObjectType = ObjectType
	}
	if normalized.OccurredAt.IsZero() {
		normalized.OccurredAt = time.Now()
	}
	return normalized
}

// ObjectID joins a settings identity and instance key as `identity#key`.
// An empty key yields the identity alone.
func ObjectID(identity, instanceKey string) string {
	identity = strings.TrimSpace(identity)
	instanceKey = strings.TrimSpace(instanceKey)
	if identity == "" || instanceKey == "" {
		return identity
	}
	return identity + "#" + instanceKey
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		if list, ok := value.([]string); ok {
			value = append([]string{}, list...)
		}
		dst[key] = value
	}
	return dst
}
