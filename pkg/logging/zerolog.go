// Package logging adapts structured loggers to settings.Logger.
package logging

import (
	"github.com/rs/zerolog"

	settings "github.com/goliatone/go-settings"
)

// ZerologLogger writes engine operations as zerolog events. Failed
// operations log at error level, the rest at debug.
type ZerologLogger struct {
	logger zerolog.Logger
}

// Zerolog wraps logger, tagging every event with component=settings.
func Zerolog(logger zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{logger: logger.With().Str("component", "settings").Logger()}
}

// LogOperation implements settings.Logger.
func (l *ZerologLogger) LogOperation(event settings.LogEvent) {
	var e *zerolog.Event
	if event.Err != nil {
		e = l.logger.Error().Err(event.Err)
	} else {
		e = l.logger.Debug()
	}
	if !e.Enabled() {
		return
	}
	e = e.Str("op", event.Op)
	if event.Identity != "" {
		e = e.Str("identity", event.Identity)
	}
	if event.InstanceKey != "" {
		e = e.Str("instance_key", event.InstanceKey)
	}
	if event.Engine != "" {
		e = e.Str("engine", event.Engine).Str("expr", event.Expr)
	}
	if r := event.Report; r != nil {
		e = e.Str("migration", r.State.String()).Int("from", r.From).Int("to", r.To)
		if r.Service != "" {
			e = e.Str("service", r.Service)
		}
	}
	if event.Duration > 0 {
		e = e.Dur("duration", event.Duration)
	}
	e.Msg("settings " + event.Op)
}

var _ settings.Logger = (*ZerologLogger)(nil)
