package usersink

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-settings/pkg/activity"
	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"
)

// Hook records settings events in a go-users ActivitySink. The settings
// reference travels in the record data under identity, short_name and
// instance_key so audit queries can filter by schema.
type Hook struct {
	Sink usertypes.ActivitySink
	// SkipAnonymous drops events that carry no actor or user.
	SkipAnonymous bool
}

// Notify maps the event into an ActivityRecord and forwards it to the sink.
func (h Hook) Notify(ctx context.Context, event activity.Event) error {
	if h.Sink == nil {
		return nil
	}

	normalized := activity.NormalizeEvent(event)
	if normalized.Verb == "" || normalized.ObjectID == "" {
		return nil
	}
	actorID := parseUUID(normalized.ActorID)
	userID := parseUUID(normalized.UserID)
	if h.SkipAnonymous && actorID == uuid.Nil && userID == uuid.Nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	record := usertypes.ActivityRecord{
		ActorID:    actorID,
		UserID:     userID,
		TenantID:   parseUUID(normalized.TenantID),
		Verb:       normalized.Verb,
		ObjectType: normalized.ObjectType,
		ObjectID:   normalized.ObjectID,
		Channel:    normalized.Channel,
		Data:       recordData(normalized),
		OccurredAt: normalized.OccurredAt,
	}
	if record.OccurredAt.IsZero() {
		record.OccurredAt = time.Now()
	}
	return h.Sink.Log(ctx, record)
}

func recordData(event activity.Event) map[string]any {
	data := make(map[string]any, len(event.Metadata)+5)
	for key, value := range event.Metadata {
		data[key] = value
	}
	set := func(key, value string) {
		if value != "" {
			data[key] = value
		}
	}
	set("identity", event.Identity)
	set("short_name", event.ShortName)
	set("instance_key", event.InstanceKey)
	set("definition_code", event.DefinitionCode)
	// Actors outside go-users keep their raw id.
	if event.ActorID != "" && parseUUID(event.ActorID) == uuid.Nil {
		data["actor"] = event.ActorID
	}
	if len(event.Recipients) > 0 {
		data["recipients"] = append([]string{}, event.Recipients...)
	}
	if len(data) == 0 {
		return nil
	}
	return data
}

func parseUUID(input string) uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(input))
	if err != nil {
		return uuid.Nil
	}
	return id
}
