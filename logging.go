package settings

import "time"

// Operation names reported to a Logger.
const (
	OpBuild    = "build"
	OpGet      = "get"
	OpSave     = "save"
	OpReset    = "reset"
	OpMigrate  = "migrate"
	OpEvaluate = "evaluate"
	OpActivity = "activity"
)

// LogEvent describes one engine operation for logging.
type LogEvent struct {
	Op          string
	Identity    string
	InstanceKey string
	Engine      string
	Expr        string
	Report      *LoadReport
	Duration    time.Duration
	Err         error
}

// Logger records engine events.
type Logger interface {
	LogOperation(LogEvent)
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(LogEvent)

// LogOperation implements Logger.
func (f LoggerFunc) LogOperation(event LogEvent) {
	if f != nil {
		f(event)
	}
}

type noopLogger struct{}

func (noopLogger) LogOperation(LogEvent) {}

// WithLogger attaches a logger to the manager. A nil logger silences output.
func WithLogger(logger Logger) Option {
	return func(cfg *managerConfig) {
		if logger == nil {
			cfg.logger = noopLogger{}
			return
		}
		cfg.logger = logger
	}
}
