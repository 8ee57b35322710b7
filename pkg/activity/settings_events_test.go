package activity

import (
	"context"
	"testing"
)

func TestBuildSettingsSavedEventCarriesInstanceReference(t *testing.T) {
	meta := map[string]any{"custom": "value"}
	changed := []string{"host", "port"}
	input := SettingsEventInput{
		Actor:          Actor{ActorID: " actor ", UserID: " user ", TenantID: " tenant "},
		Identity:       "app.MailerSettings",
		ShortName:      "mailer",
		InstanceKey:    "primary",
		Metadata:       meta,
		Changed:        changed,
		DefinitionCode: "settings:saved",
		Recipients:     []string{"ops@example.com"},
		Channel:        "settings",
	}

	event := BuildSettingsSavedEvent(input)

	if event.Verb != VerbSaved {
		t.Fatalf("expected verb %s got %s", VerbSaved, event.Verb)
	}
	if event.ObjectType != ObjectType || event.ObjectID != "app.MailerSettings#primary" {
		t.Fatalf("unexpected object fields: %+v", event)
	}
	if event.ActorID != "actor" || event.UserID != "user" || event.TenantID != "tenant" {
		t.Fatalf("unexpected actor fields: %+v", event)
	}
	if event.Identity != "app.MailerSettings" || event.ShortName != "mailer" || event.InstanceKey != "primary" {
		t.Fatalf("expected instance reference, got %+v", event)
	}
	names, ok := event.Metadata["changed"].([]string)
	if !ok || len(names) != 2 {
		t.Fatalf("expected changed names, got %v", event.Metadata["changed"])
	}
	names[0] = "mutated"
	if changed[0] != "host" {
		t.Fatalf("expected input changed list untouched")
	}
	if _, ok := event.Metadata["from_version"]; ok {
		t.Fatalf("expected no version metadata on save")
	}
	event.Recipients[0] = "changed"
	if input.Recipients[0] != "ops@example.com" {
		t.Fatalf("expected input recipients untouched, got %v", input.Recipients)
	}
	if event.Metadata["custom"] != "value" || len(event.Metadata) != 2 {
		t.Fatalf("expected custom and changed metadata, got %+v", event.Metadata)
	}
	if meta["custom"] != "value" || len(meta) != 1 {
		t.Fatalf("expected input metadata untouched: %+v", meta)
	}
}

func TestBuildSettingsMigratedEventRecordsVersions(t *testing.T) {
	event := BuildSettingsMigratedEvent(SettingsEventInput{Identity: "app.Mailer", FromVersion: 1, ToVersion: 3})
	if event.Verb != VerbMigrated {
		t.Fatalf("expected verb %s got %s", VerbMigrated, event.Verb)
	}
	if event.ObjectID != "app.Mailer" {
		t.Fatalf("expected object id without instance key, got %q", event.ObjectID)
	}
	if event.Metadata["from_version"] != 1 || event.Metadata["to_version"] != 3 {
		t.Fatalf("expected version metadata, got %+v", event.Metadata)
	}
}

func TestBuildSettingsResetEventWithoutIdentityHasNoObject(t *testing.T) {
	event := BuildSettingsResetEvent(SettingsEventInput{})
	if event.ObjectID != "" || event.ObjectType != ObjectType {
		t.Fatalf("expected an unattached settings event, got %+v", event)
	}
	if event.Metadata != nil {
		t.Fatalf("expected nil metadata, got %+v", event.Metadata)
	}
}

func TestActorRoundTripsThroughContext(t *testing.T) {
	if _, ok := ActorFromContext(context.Background()); ok {
		t.Fatalf("expected no actor on a bare context")
	}
	ctx := WithActor(context.Background(), Actor{UserID: "u-1"})
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID != "u-1" {
		t.Fatalf("expected actor from context, got %+v (%v)", actor, ok)
	}
}
