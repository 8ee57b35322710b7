package settings

import "context"

// Target identifies what an adapter loads or saves: the schema being
// persisted, an optional instance key and the options from the schema's
// storage binding.
type Target struct {
	Identity    string
	ShortName   string
	InstanceKey string
	Options     map[string]any
}

// StorageAdapter persists normalized maps. Load returns an empty map, not an
// error, when nothing has been stored yet. Adapters own any locking or
// transactional discipline across units of work.
type StorageAdapter interface {
	Load(ctx context.Context, target Target) (*NormalizedMap, error)
	Save(ctx context.Context, target Target, data *NormalizedMap) error
}

// Option returns the string option stored under key.
func (t Target) Option(key string) string {
	if t.Options == nil {
		return ""
	}
	if s, ok := t.Options[key].(string); ok {
		return s
	}
	return ""
}

func newTarget(s *Schema, instanceKey string) Target {
	return Target{
		Identity:    s.Identity(),
		ShortName:   s.ShortName(),
		InstanceKey: instanceKey,
		Options:     s.Storage().Options,
	}
}
