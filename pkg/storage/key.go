package storage

import (
	"errors"
	"fmt"
	"strings"

	settings "github.com/goliatone/go-settings"
)

// ErrInvalidTarget reports a target whose options cannot produce a key.
var ErrInvalidTarget = errors.New("storage: invalid target")

// Key returns the canonical storage key for target.
func Key(target settings.Target) (string, error) {
	base, err := baseKey(target)
	if err != nil {
		return "", err
	}
	if target.InstanceKey != "" {
		return base + "#" + target.InstanceKey, nil
	}
	return base, nil
}

func baseKey(target settings.Target) (string, error) {
	if key := strings.TrimSpace(target.Option("key")); key != "" {
		return key, nil
	}
	domain := target.ShortName
	if domain == "" {
		return "", fmt.Errorf("%w: short name is required", ErrInvalidTarget)
	}
	scope := strings.TrimSpace(target.Option("scope"))
	switch scope {
	case "", "system":
		return fmt.Sprintf("system/%s", domain), nil
	case "tenant", "org", "team", "user":
		metadataKey := scope + "_id"
		id := scopeID(target.Options[metadataKey])
		if id == "" {
			return "", fmt.Errorf("%w: missing option %q for scope %q", ErrInvalidTarget, metadataKey, scope)
		}
		return fmt.Sprintf("%s/%s/%s", scope, id, domain), nil
	default:
		return "", fmt.Errorf("%w: unsupported scope %q", ErrInvalidTarget, scope)
	}
}

func scopeID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(id)
	default:
		return fmt.Sprint(id)
	}
}
