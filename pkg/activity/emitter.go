package activity

import (
	"context"
	"strings"
)

// DefaultChannel is applied to events that do not name a channel.
const DefaultChannel = "settings"

// Config controls activity emission defaults supplied by DI/config.
type Config struct {
	Enabled bool
	Channel string
	// Verbs limits emission to the listed verbs. Empty emits every verb.
	Verbs []string
	// Recipients are attached to events that carry none.
	Recipients []string
}

// Emitter fans out settings events to hooks while applying defaults. A
// scoped emitter also stamps the schema it was scoped to.
type Emitter struct {
	hooks      Hooks
	enabled    bool
	channel    string
	verbs      map[string]struct{}
	recipients []string
	identity   string
	shortName  string
}

// NewEmitter constructs an emitter from hooks and configuration.
func NewEmitter(hooks Hooks, cfg Config) *Emitter {
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = DefaultChannel
	}
	compacted := hooks.Compact()
	var verbs map[string]struct{}
	for _, verb := range cfg.Verbs {
		if verb = strings.TrimSpace(verb); verb != "" {
			if verbs == nil {
				verbs = map[string]struct{}{}
			}
			verbs[verb] = struct{}{}
		}
	}
	return &Emitter{
		hooks:      compacted,
		enabled:    cfg.Enabled && len(compacted) > 0,
		channel:    channel,
		verbs:      verbs,
		recipients: append([]string(nil), cfg.Recipients...),
	}
}

// Enabled reports whether emissions should be attempted.
func (e *Emitter) Enabled() bool {
	return e != nil && e.enabled && len(e.hooks) > 0
}

// Scoped returns an emitter that fills Identity and ShortName on events
// that leave them empty. The receiver is not modified.
func (e *Emitter) Scoped(identity, shortName string) *Emitter {
	if e == nil {
		return nil
	}
	scoped := *e
	scoped.identity = strings.TrimSpace(identity)
	scoped.shortName = strings.TrimSpace(shortName)
	return &scoped
}

// Identity returns the identity the emitter was scoped to.
func (e *Emitter) Identity() string {
	if e == nil {
		return ""
	}
	return e.identity
}

// Emit applies the emitter's defaults and forwards event to every hook.
// Events whose verb is filtered out are dropped silently.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if !e.Enabled() {
		return nil
	}
	if !e.allows(event.Verb) {
		return nil
	}
	if strings.TrimSpace(event.Channel) == "" {
		event.Channel = e.channel
	}
	if strings.TrimSpace(event.Identity) == "" {
		event.Identity = e.identity
	}
	if strings.TrimSpace(event.ShortName) == "" {
		event.ShortName = e.shortName
	}
	if len(event.Recipients) == 0 && len(e.recipients) > 0 {
		event.Recipients = e.recipients
	}
	return e.hooks.Notify(ctx, event)
}

func (e *Emitter) allows(verb string) bool {
	if len(e.verbs) == 0 {
		return true
	}
	_, ok := e.verbs[strings.TrimSpace(verb)]
	return ok
}
