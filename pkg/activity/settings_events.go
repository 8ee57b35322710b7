package activity

import (
	"context"
	"time"
)

// Verbs emitted by the settings manager.
const (
	VerbSaved    = "settings.saved"
	VerbReset    = "settings.reset"
	VerbMigrated = "settings.migrated"
)

// ObjectType is the object type attached to every settings event.
const ObjectType = "settings"

// Actor identifies who triggered an operation.
type Actor struct {
	ActorID  string
	UserID   string
	TenantID string
}

type actorKey struct{}

// WithActor stores actor on ctx so events emitted under it are attributed.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor stored by WithActor.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}

// SettingsEventInput describes the common fields for settings lifecycle
// events. Identity and ShortName may be left empty when the event goes out
// through an emitter scoped to the schema.
type SettingsEventInput struct {
	Actor          Actor
	Identity       string
	ShortName      string
	InstanceKey    string
	Channel        string
	DefinitionCode string
	Recipients     []string
	Metadata       map[string]any
	// Changed lists the parameter names that differ from the loaded state.
	Changed []string
	// FromVersion and ToVersion are set on migration events.
	FromVersion int
	ToVersion   int
	OccurredAt  time.Time
}

// BuildSettingsSavedEvent constructs the event emitted after a successful save.
func BuildSettingsSavedEvent(input SettingsEventInput) Event {
	return buildSettingsEvent(VerbSaved, input)
}

// BuildSettingsResetEvent constructs the event emitted after a reset.
func BuildSettingsResetEvent(input SettingsEventInput) Event {
	return buildSettingsEvent(VerbReset, input)
}

// BuildSettingsMigratedEvent constructs the event emitted when a loaded map
// was upgraded.
func BuildSettingsMigratedEvent(input SettingsEventInput) Event {
	return buildSettingsEvent(VerbMigrated, input)
}

func buildSettingsEvent(verb string, input SettingsEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if len(input.Changed) > 0 {
		metadata = ensureMetadata(metadata)
		metadata["changed"] = append([]string{}, input.Changed...)
	}
	if input.FromVersion != 0 || input.ToVersion != 0 {
		metadata = ensureMetadata(metadata)
		metadata["from_version"] = input.FromVersion
		metadata["to_version"] = input.ToVersion
	}

	return NormalizeEvent(Event{
		Verb:           verb,
		ActorID:        input.Actor.ActorID,
		UserID:         input.Actor.UserID,
		TenantID:       input.Actor.TenantID,
		Identity:       input.Identity,
		ShortName:      input.ShortName,
		InstanceKey:    input.InstanceKey,
		ObjectType:     ObjectType,
		Channel:        input.Channel,
		DefinitionCode: input.DefinitionCode,
		Recipients:     input.Recipients,
		Metadata:       metadata,
		OccurredAt:     input.OccurredAt,
	})
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
